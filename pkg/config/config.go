package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/anomaly"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/duplicate"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/pattern"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/recovery"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/signature"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/spf13/viper"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	AuditSinkLog   = "log"
	AuditSinkKafka = "kafka"
)

type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Log        LogConfig              `mapstructure:"log"`
	Redis      cache.Config           `mapstructure:"redis"`
	Store      StoreConfig            `mapstructure:"store"`
	Metrics    MetricsConfig          `mapstructure:"metrics"`
	Audit      AuditConfig            `mapstructure:"audit"`
	ReportLoop ReportLoopConfig       `mapstructure:"report_loop"`
	Intrusion  IntrusionConfig        `mapstructure:"intrusion"`
	Recovery   recovery.Config        `mapstructure:"recovery"`
	Janitor    JanitorConfig          `mapstructure:"janitor"`
	Signatures []signature.Definition `mapstructure:"signatures"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	ApiPort         int           `mapstructure:"api_port"`
	AdminPort       int           `mapstructure:"admin_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	SecretKey       string        `mapstructure:"secret_key"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustedProxies lists the peers whose forwarding headers are honored.
	// Empty means forwarding headers are read from any peer.
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
}

type StoreConfig struct {
	Type         string        `mapstructure:"type"`
	FailOpen     bool          `mapstructure:"fail_open"`
	PersistGrace time.Duration `mapstructure:"persist_grace"`
}

type MetricsConfig struct {
	Enabled                  bool `mapstructure:"enabled"`
	prometheus.MetricsConfig `mapstructure:",squash"`
}

type AuditConfig struct {
	Sink      string                 `mapstructure:"sink"`
	QueueSize int                    `mapstructure:"queue_size"`
	Workers   int                    `mapstructure:"workers"`
	Kafka     map[string]interface{} `mapstructure:"kafka"`
}

type WindowConfig struct {
	Name  string        `mapstructure:"name"`
	Span  time.Duration `mapstructure:"span"`
	Limit int           `mapstructure:"limit"`
}

type ReportLoopConfig struct {
	Windows              []WindowConfig     `mapstructure:"windows"`
	Pattern              pattern.Thresholds `mapstructure:"pattern"`
	Duplicate            duplicate.Config   `mapstructure:"duplicate"`
	BlockDuration        time.Duration      `mapstructure:"block_duration"`
	EligibleRetryAfter   time.Duration      `mapstructure:"eligible_retry_after"`
	DependencyRetryAfter time.Duration      `mapstructure:"dependency_retry_after"`
}

type IntrusionConfig struct {
	Anomaly              anomaly.Config `mapstructure:"anomaly"`
	ThreatBlockDuration  time.Duration  `mapstructure:"threat_block_duration"`
	AnomalyBlockDuration time.Duration  `mapstructure:"anomaly_block_duration"`
	AnomalyBlockCount    int            `mapstructure:"anomaly_block_count"`
	LoginWindow          time.Duration  `mapstructure:"login_window"`
	DependencyRetryAfter time.Duration  `mapstructure:"dependency_retry_after"`
}

type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LedgerWindows converts the configured windows, falling back to the
// minute/hour/day defaults when none are set.
func (c ReportLoopConfig) LedgerWindows() []ledger.Window {
	if len(c.Windows) == 0 {
		return append([]ledger.Window(nil), ledger.DefaultWindows...)
	}
	windows := make([]ledger.Window, 0, len(c.Windows))
	for _, w := range c.Windows {
		windows = append(windows, ledger.Window{Name: w.Name, Span: w.Span, Limit: w.Limit})
	}
	return windows
}

var globalConfig Config

// Default returns a configuration that runs without a config file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ApiPort:         8080,
			AdminPort:       8081,
			MetricsPort:     9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Dir: "logs", Console: true},
		Redis: cache.Config{
			Host:            "localhost",
			Port:            6379,
			Timeout:         250 * time.Millisecond,
			BreakerTimeout:  30 * time.Second,
			BreakerFailures: 5,
		},
		Store:   StoreConfig{Type: StoreRedis, PersistGrace: time.Hour},
		Metrics: MetricsConfig{Enabled: true, MetricsConfig: prometheus.DefaultMetricsConfig()},
		Audit:   AuditConfig{Sink: AuditSinkLog, QueueSize: 1000, Workers: 2},
		ReportLoop: ReportLoopConfig{
			Pattern:              pattern.DefaultThresholds(),
			Duplicate:            duplicate.DefaultConfig(),
			BlockDuration:        30 * time.Minute,
			EligibleRetryAfter:   5 * time.Minute,
			DependencyRetryAfter: 5 * time.Second,
		},
		Intrusion: IntrusionConfig{
			Anomaly:              anomaly.DefaultConfig(),
			ThreatBlockDuration:  time.Hour,
			AnomalyBlockDuration: 30 * time.Minute,
			AnomalyBlockCount:    3,
			LoginWindow:          5 * time.Minute,
			DependencyRetryAfter: 5 * time.Second,
		},
		Recovery: recovery.DefaultConfig(),
		Janitor:  JanitorConfig{Interval: time.Minute},
	}
}

// Load reads <configPath>/config.yaml over the defaults. Environment
// variables override file values using "_" in place of ".", e.g.
// SERVER_SECRET_KEY. A missing file is not an error.
func Load(configPath string) error {
	cfg := Default()
	if err := loadConfigFile(configPath, "config", &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	globalConfig = cfg
	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	v := viper.New()
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"server.secret_key", "server.host",
		"redis.host", "redis.port", "redis.password", "redis.db", "redis.tls",
		"store.type", "store.fail_open",
		"audit.sink", "log.level",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}
	return nil
}

func GetConfig() *Config {
	return &globalConfig
}

// Validate rejects settings the guards cannot run under. Every failure is a
// ConfigurationError and aborts startup.
func (c *Config) Validate() error {
	if c.Server.SecretKey == "" {
		return domain.NewConfigurationError("server.secret_key", "is required")
	}
	ports := map[int]string{}
	for name, port := range map[string]int{
		"server.api_port":     c.Server.ApiPort,
		"server.admin_port":   c.Server.AdminPort,
		"server.metrics_port": c.Server.MetricsPort,
	} {
		if port <= 0 || port > 65535 {
			return domain.NewConfigurationError(name, "must be between 1 and 65535, got %d", port)
		}
		if other, ok := ports[port]; ok {
			return domain.NewConfigurationError(name, "port %d already used by %s", port, other)
		}
		ports[port] = name
	}
	for i, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return domain.NewConfigurationError(
				fmt.Sprintf("server.trusted_proxies[%d]", i), "%q is neither an IP nor a CIDR", proxy)
		}
	}

	switch c.Store.Type {
	case StoreRedis, StoreMemory:
	default:
		return domain.NewConfigurationError("store.type", "unknown store %q", c.Store.Type)
	}
	switch c.Audit.Sink {
	case AuditSinkLog, AuditSinkKafka:
	default:
		return domain.NewConfigurationError("audit.sink", "unknown sink %q", c.Audit.Sink)
	}

	seen := map[string]bool{}
	for i, w := range c.ReportLoop.Windows {
		if w.Name == "" || seen[w.Name] {
			return domain.NewConfigurationError(fmt.Sprintf("report_loop.windows[%d].name", i), "must be unique and non-empty")
		}
		seen[w.Name] = true
		if w.Span <= 0 || w.Limit < 0 {
			return domain.NewConfigurationError(fmt.Sprintf("report_loop.windows[%d]", i), "span must be positive and limit non-negative")
		}
	}

	for field, d := range map[string]time.Duration{
		"report_loop.block_duration":       c.ReportLoop.BlockDuration,
		"report_loop.duplicate.window":     c.ReportLoop.Duplicate.Window,
		"report_loop.pattern.window":       c.ReportLoop.Pattern.Window,
		"report_loop.pattern.rapid_window": c.ReportLoop.Pattern.RapidWindow,
		"intrusion.threat_block_duration":  c.Intrusion.ThreatBlockDuration,
		"intrusion.anomaly_block_duration": c.Intrusion.AnomalyBlockDuration,
		"intrusion.login_window":           c.Intrusion.LoginWindow,
		"recovery.tick_interval":           c.Recovery.TickInterval,
		"recovery.backoff":                 c.Recovery.Backoff,
		"janitor.interval":                 c.Janitor.Interval,
	} {
		if d <= 0 {
			return domain.NewConfigurationError(field, "must be positive, got %s", d)
		}
	}
	if c.Recovery.MaxAttempts <= 0 {
		return domain.NewConfigurationError("recovery.max_attempts", "must be positive, got %d", c.Recovery.MaxAttempts)
	}
	if c.Intrusion.AnomalyBlockCount <= 0 {
		return domain.NewConfigurationError("intrusion.anomaly_block_count", "must be positive, got %d", c.Intrusion.AnomalyBlockCount)
	}
	return nil
}
