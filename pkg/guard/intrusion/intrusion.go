package intrusion

import (
	"context"
	"strings"
	"time"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/anomaly"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/signature"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

const GuardName = "intrusion"

type Config struct {
	ThreatBlockDuration  time.Duration
	AnomalyBlockDuration time.Duration
	AnomalyBlockCount    int
	RequestWindow        time.Duration
	LoginWindow          time.Duration
	DependencyRetryAfter time.Duration
	FailOpen             bool
}

func DefaultConfig() Config {
	return Config{
		ThreatBlockDuration:  time.Hour,
		AnomalyBlockDuration: 30 * time.Minute,
		AnomalyBlockCount:    3,
		RequestWindow:        time.Minute,
		LoginWindow:          5 * time.Minute,
		DependencyRetryAfter: 5 * time.Second,
	}
}

type Guard interface {
	Inspect(ctx context.Context, req security.RequestSnapshot) security.Verdict
	RecordLogin(address string, success bool)
	// Ledgers returns the request, login and failed-login ledgers in that order.
	Ledgers() []ledger.Ledger
}

type Opts struct {
	TimeProvider func() time.Time
}

type guard struct {
	cfg          Config
	registry     blocklist.Registry
	scanner      signature.Scanner
	detector     anomaly.Detector
	requests     ledger.Ledger
	logins       ledger.Ledger
	failures     ledger.Ledger
	emitter      audit.Emitter
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func NewGuard(
	cfg Config,
	registry blocklist.Registry,
	scanner signature.Scanner,
	detector anomaly.Detector,
	emitter audit.Emitter,
	logger *logrus.Logger,
	opts *Opts,
) (Guard, error) {
	def := DefaultConfig()
	if cfg.ThreatBlockDuration <= 0 {
		cfg.ThreatBlockDuration = def.ThreatBlockDuration
	}
	if cfg.AnomalyBlockDuration <= 0 {
		cfg.AnomalyBlockDuration = def.AnomalyBlockDuration
	}
	if cfg.AnomalyBlockCount <= 0 {
		cfg.AnomalyBlockCount = def.AnomalyBlockCount
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = def.RequestWindow
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = def.LoginWindow
	}
	if cfg.DependencyRetryAfter <= 0 {
		cfg.DependencyRetryAfter = def.DependencyRetryAfter
	}
	if emitter == nil {
		emitter = audit.NopEmitter()
	}

	requests, err := ledger.New("requests", []ledger.Window{{Name: "requests_per_minute", Span: cfg.RequestWindow}})
	if err != nil {
		return nil, err
	}
	logins, err := ledger.New("logins", []ledger.Window{{Name: "login_attempts", Span: cfg.LoginWindow}})
	if err != nil {
		return nil, err
	}
	failures, err := ledger.New("failed_logins", []ledger.Window{{Name: "failed_logins", Span: cfg.LoginWindow}})
	if err != nil {
		return nil, err
	}

	g := &guard{
		cfg:          cfg,
		registry:     registry,
		scanner:      scanner,
		detector:     detector,
		requests:     requests,
		logins:       logins,
		failures:     failures,
		emitter:      emitter,
		logger:       logger,
		timeProvider: time.Now,
	}
	if opts != nil && opts.TimeProvider != nil {
		g.timeProvider = opts.TimeProvider
	}
	return g, nil
}

func (g *guard) Ledgers() []ledger.Ledger {
	return []ledger.Ledger{g.requests, g.logins, g.failures}
}

func (g *guard) RecordLogin(address string, success bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return
	}
	now := g.timeProvider()
	g.logins.Record(address, now)
	if !success {
		g.failures.Record(address, now)
	}
}

// Inspect runs the block check, the signature scan and anomaly detection in
// that order. Every category and every anomaly check is evaluated so the
// verdict carries the full picture.
func (g *guard) Inspect(ctx context.Context, req security.RequestSnapshot) (verdict security.Verdict) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.WithField("panic", r).WithField("address", req.SourceAddress).
				Error("panic in intrusion check")
			verdict = deny(security.ReasonProcessingError, 0)
		}
		g.observe(verdict, start)
	}()

	address := strings.TrimSpace(req.SourceAddress)
	if address == "" {
		g.logger.WithError(domain.NewMalformedInputError("source_address", "is empty")).
			Warn("malformed request snapshot")
		return deny(security.ReasonProcessingError, 0)
	}
	now := g.timeProvider()

	if entry, blocked := g.registry.NoteAttempt(address); blocked {
		g.logger.WithFields(logrus.Fields{
			"address": address,
			"url":     req.URL,
		}).Warn("blocked address attempted access")
		return deny(security.ReasonIPBlocked, entry.Remaining(now))
	}

	if threats := g.scanner.Scan(req); len(threats) > 0 {
		return g.handleThreats(ctx, address, req, threats, now)
	}

	g.requests.Record(address, now)
	counts := security.RequestCounts{
		RequestsPerMinute: g.requests.CountSince(address, now.Add(-g.cfg.RequestWindow)),
		LoginAttempts:     g.logins.CountSince(address, now.Add(-g.cfg.LoginWindow)),
		FailedLogins:      g.failures.CountSince(address, now.Add(-g.cfg.LoginWindow)),
	}
	anomalies := g.detector.Detect(req, counts)
	if len(anomalies) == 0 {
		return security.Verdict{Allowed: true}
	}
	return g.handleAnomalies(ctx, address, req, anomalies, now)
}

func (g *guard) handleThreats(
	ctx context.Context,
	address string,
	req security.RequestSnapshot,
	threats []security.ThreatMatch,
	now time.Time,
) security.Verdict {
	severity := security.HighestSeverity(security.ThreatSeverities(threats)...)
	for _, t := range threats {
		prometheus.ThreatsTotal.WithLabelValues(string(t.Category), string(t.Severity)).Inc()
	}
	g.logger.WithFields(logrus.Fields{
		"address":  address,
		"method":   req.Method,
		"url":      req.URL,
		"threats":  threats,
		"severity": severity,
	}).Warn("threat detected")
	g.emitter.Emit(security.NewSecurityEvent(
		security.EventThreat,
		security.NamespaceAddress,
		address,
		severity,
		map[string]interface{}{
			"threats": threats,
			"method":  req.Method,
			"url":     req.URL,
		},
		now,
	))

	verdict := security.Verdict{
		Reason:  security.ReasonThreatDetected,
		Message: security.ReasonThreatDetected.Message(),
		Threats: threats,
	}
	if severity.AtLeast(security.SeverityHigh) {
		entry, err := g.registry.Block(ctx, address, g.cfg.ThreatBlockDuration, string(security.ReasonThreatDetected))
		if failed := g.blockFailed(err, address); failed != nil {
			return *failed
		}
		verdict.RetryAfter = entry.Remaining(g.timeProvider())
	}
	return verdict
}

func (g *guard) handleAnomalies(
	ctx context.Context,
	address string,
	req security.RequestSnapshot,
	anomalies []security.Anomaly,
	now time.Time,
) security.Verdict {
	severity := security.HighestSeverity(security.AnomalySeverities(anomalies)...)
	high := 0
	for _, a := range anomalies {
		prometheus.AnomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		if a.Severity.AtLeast(security.SeverityHigh) {
			high++
		}
	}
	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"url":       req.URL,
		"anomalies": anomalies,
	}).Info("anomaly detected")
	g.emitter.Emit(security.NewSecurityEvent(
		security.EventAnomaly,
		security.NamespaceAddress,
		address,
		severity,
		map[string]interface{}{
			"anomalies": anomalies,
			"url":       req.URL,
		},
		now,
	))

	if high < g.cfg.AnomalyBlockCount {
		return security.Verdict{Allowed: true, Anomalies: anomalies}
	}
	entry, err := g.registry.Block(ctx, address, g.cfg.AnomalyBlockDuration, string(security.ReasonAnomalyBlocked))
	if failed := g.blockFailed(err, address); failed != nil {
		return *failed
	}
	v := deny(security.ReasonAnomalyBlocked, entry.Remaining(g.timeProvider()))
	v.Anomalies = anomalies
	return v
}

// blockFailed applies the fail policy. It returns nil when the caller should
// carry on with its own verdict.
func (g *guard) blockFailed(err error, address string) *security.Verdict {
	if err == nil {
		return nil
	}
	if domain.IsTransientDependency(err) && g.cfg.FailOpen {
		g.logger.WithError(err).WithField("address", address).Warn("block kept in memory only")
		return nil
	}
	g.logger.WithError(err).WithField("address", address).Error("failed to persist block")
	v := deny(security.ReasonDependencyUnavailable, g.cfg.DependencyRetryAfter)
	return &v
}

func (g *guard) observe(verdict security.Verdict, start time.Time) {
	outcome := "allowed"
	if !verdict.Allowed {
		outcome = "denied"
	}
	prometheus.DecisionsTotal.WithLabelValues(GuardName, outcome, string(verdict.Reason)).Inc()
	if prometheus.Config.EnableLatency {
		prometheus.CheckLatency.WithLabelValues(GuardName).
			Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}

func deny(reason security.Reason, retryAfter time.Duration) security.Verdict {
	return security.Verdict{
		Reason:     reason,
		Message:    reason.Message(),
		RetryAfter: retryAfter,
	}
}
