package audit

import (
	"context"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

const exportTimeout = 5 * time.Second

type Dispatcher interface {
	Emitter
	StartWorkers(n int)
	Shutdown()
}

type dispatcher struct {
	logger    *logrus.Logger
	exporters []Exporter
	taskChan  chan security.SecurityEvent
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// NewDispatcher fans events out to the exporters on a pool of workers. Events
// are dropped, and counted, when the queue is full.
func NewDispatcher(logger *logrus.Logger, queueSize int, exporters ...Exporter) Dispatcher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &dispatcher{
		logger:    logger,
		exporters: exporters,
		taskChan:  make(chan security.SecurityEvent, queueSize),
	}
}

func (d *dispatcher) Emit(evt security.SecurityEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.taskChan <- evt:
	default:
		prometheus.AuditEventsTotal.WithLabelValues(string(evt.Type), "dropped").Inc()
		d.logger.WithFields(logrus.Fields{
			"event_type": evt.Type,
			"identity":   evt.Identity,
		}).Warn("audit queue is full, dropping security event")
	}
}

func (d *dispatcher) StartWorkers(n int) {
	if n <= 0 {
		n = 1
	}
	d.logger.WithField("workers", n).Info("starting audit workers")
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for evt := range d.taskChan {
				d.export(evt)
			}
		}()
	}
}

// Shutdown stops accepting events, drains the queue and closes the exporters.
func (d *dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.taskChan)
	d.mu.Unlock()

	d.logger.Info("shutting down audit workers")
	d.wg.Wait()
	for _, exporter := range d.exporters {
		exporter.Close()
	}
	d.logger.Info("audit workers stopped")
}

func (d *dispatcher) export(evt security.SecurityEvent) {
	for _, exporter := range d.exporters {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		err := exporter.Export(ctx, evt)
		cancel()
		if err != nil {
			prometheus.AuditEventsTotal.WithLabelValues(string(evt.Type), "failed").Inc()
			d.logger.WithFields(logrus.Fields{
				"exporter":   exporter.Name(),
				"event_id":   evt.ID,
				"event_type": evt.Type,
			}).WithError(err).Error("exporter failed")
			continue
		}
		prometheus.AuditEventsTotal.WithLabelValues(string(evt.Type), "sent").Inc()
	}
}
