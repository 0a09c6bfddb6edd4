package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Check latency buckets in milliseconds; pipelines run in memory.
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 100}

	DecisionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_decisions_total",
			Help: "Pipeline decisions by guard, outcome and reason",
		},
		[]string{"guard", "outcome", "reason"},
	)

	CheckLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trustguard_check_latency_ms",
			Help:    "Time spent in a guard pipeline in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"guard"},
	)

	ThreatsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_threats_total",
			Help: "Signature matches by category",
		},
		[]string{"category", "severity"},
	)

	AnomaliesTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_anomalies_total",
			Help: "Detected anomalies by type",
		},
		[]string{"type", "severity"},
	)

	BlocksTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_blocks_total",
			Help: "Identities blocked",
		},
		[]string{"namespace", "reason"},
	)

	UnblocksTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_unblocks_total",
			Help: "Identities unblocked, by cause (recovery or manual)",
		},
		[]string{"namespace", "cause"},
	)

	BlockedIdentities = promauto.With(registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trustguard_blocked_identities",
			Help: "Currently blocked identities",
		},
		[]string{"namespace"},
	)

	PendingRecoveries = promauto.With(registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trustguard_pending_recoveries",
			Help: "Blocked identities waiting in the recovery queue",
		},
		[]string{"namespace"},
	)

	AuditEventsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_audit_events_total",
			Help: "Security events handed to the audit sink, by delivery status",
		},
		[]string{"type", "status"},
	)

	JanitorRemovedTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_janitor_removed_total",
			Help: "Expired entries removed by the janitor, by holder",
		},
		[]string{"holder"},
	)

	HTTPRequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_http_requests_total",
			Help: "HTTP requests served, by server, route and status code",
		},
		[]string{"server", "route", "status"},
	)

	HTTPRequestDuration = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trustguard_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		},
		[]string{"server", "route"},
	)

	StoreErrorsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustguard_store_errors_total",
			Help: "Key/value store failures by operation",
		},
		[]string{"operation"},
	)
)

type MetricsConfig struct {
	EnableLatency bool `mapstructure:"enable_latency"`
	EnableProcess bool `mapstructure:"enable_process"`
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableLatency: true,
		EnableProcess: true,
	}
}

var (
	Config   = DefaultMetricsConfig()
	initOnce sync.Once
)

// Initialize may be called more than once; collectors are only registered
// the first time.
func Initialize(cfg MetricsConfig) {
	Config = cfg
	initOnce.Do(func() {
		if cfg.EnableProcess {
			registry.MustRegister(
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				collectors.NewGoCollector(),
			)
		}
		prometheus.DefaultRegisterer = registry
		prometheus.DefaultGatherer = registry
	})
}

func Gatherer() prometheus.Gatherer {
	return registry
}
