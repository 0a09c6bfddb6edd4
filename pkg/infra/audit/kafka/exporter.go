package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/mitchellh/mapstructure"
)

const (
	ExporterName = "kafka"
)

type Config struct {
	Host  string `mapstructure:"host"`
	Port  string `mapstructure:"port"`
	Topic string `mapstructure:"topic"`
}

type Exporter struct {
	cfg      Config
	producer *kafka.Producer
}

func ValidateConfig(settings map[string]interface{}) (Config, error) {
	var conf Config
	if err := mapstructure.Decode(settings, &conf); err != nil {
		return conf, fmt.Errorf("invalid kafka config: %w", err)
	}
	if conf.Host == "" {
		return conf, errors.New("kafka host is required")
	}
	if conf.Port == "" {
		return conf, errors.New("kafka port is required")
	}
	if conf.Topic == "" {
		return conf, errors.New("kafka topic is required")
	}
	return conf, nil
}

func NewKafkaExporter(settings map[string]interface{}) (*Exporter, error) {
	conf, err := ValidateConfig(settings)
	if err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": fmt.Sprintf("%s:%s", conf.Host, conf.Port),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &Exporter{
		cfg:      conf,
		producer: producer,
	}, nil
}

func (p *Exporter) Name() string {
	return ExporterName
}

// Export keys messages by identity so events for one identity stay ordered
// within a partition.
func (p *Exporter) Export(ctx context.Context, evt security.SecurityEvent) error {
	if p.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	deliveryChan := make(chan kafka.Event, 1)

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.cfg.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(string(evt.Namespace) + ":" + evt.Identity),
		Value:          data,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("delivery not confirmed: %w", ctx.Err())
	}
}

func (p *Exporter) Close() {
	if p.producer != nil {
		p.producer.Flush(5000)
		p.producer.Close()
	}
}
