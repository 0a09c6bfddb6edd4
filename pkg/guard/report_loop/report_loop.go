package report_loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/duplicate"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/locks"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/pattern"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const GuardName = "report_loop"

type Config struct {
	BlockDuration        time.Duration
	EligibleRetryAfter   time.Duration
	DependencyRetryAfter time.Duration
	FailOpen             bool
}

func DefaultConfig() Config {
	return Config{
		BlockDuration:        30 * time.Minute,
		EligibleRetryAfter:   5 * time.Minute,
		DependencyRetryAfter: 5 * time.Second,
	}
}

type Guard interface {
	CheckRequestLoop(ctx context.Context, event security.ReportEvent) security.Decision
}

type Opts struct {
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
}

type guard struct {
	cfg          Config
	registry     blocklist.Registry
	ledger       ledger.Ledger
	analyzer     pattern.Analyzer
	duplicates   duplicate.Guard
	emitter      audit.Emitter
	logger       *logrus.Logger
	locks        *locks.Striped
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

func NewGuard(
	cfg Config,
	registry blocklist.Registry,
	l ledger.Ledger,
	analyzer pattern.Analyzer,
	duplicates duplicate.Guard,
	emitter audit.Emitter,
	logger *logrus.Logger,
	opts *Opts,
) Guard {
	def := DefaultConfig()
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	if cfg.EligibleRetryAfter <= 0 {
		cfg.EligibleRetryAfter = def.EligibleRetryAfter
	}
	if cfg.DependencyRetryAfter <= 0 {
		cfg.DependencyRetryAfter = def.DependencyRetryAfter
	}
	if emitter == nil {
		emitter = audit.NopEmitter()
	}
	g := &guard{
		cfg:          cfg,
		registry:     registry,
		ledger:       l,
		analyzer:     analyzer,
		duplicates:   duplicates,
		emitter:      emitter,
		logger:       logger,
		locks:        locks.NewStriped(0),
		timeProvider: time.Now,
		uuidProvider: uuid.New,
	}
	if opts != nil && opts.TimeProvider != nil {
		g.timeProvider = opts.TimeProvider
	}
	if opts != nil && opts.UuidProvider != nil {
		g.uuidProvider = opts.UuidProvider
	}
	return g
}

// CheckRequestLoop runs block check, frequency check, duplicate check and
// loop analysis in that order, and records the event only when all pass. It
// never panics past its boundary.
func (g *guard) CheckRequestLoop(ctx context.Context, event security.ReportEvent) (decision security.Decision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.WithField("panic", r).WithField("identity", event.IdentityID).
				Error("panic in report loop check")
			decision = security.Deny(security.ReasonProcessingError, 0)
		}
		g.observe(decision, start)
	}()

	identity := strings.TrimSpace(event.IdentityID)
	if identity == "" {
		return g.malformed(domain.NewMalformedInputError("identity_id", "is empty"), event)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = g.uuidProvider().String()
	}

	unlock := g.locks.Lock(identity)
	defer unlock()
	now := g.timeProvider()

	if entry, blocked := g.registry.NoteAttempt(identity); blocked {
		retryAfter := entry.Remaining(now)
		if retryAfter == 0 {
			retryAfter = g.cfg.EligibleRetryAfter
		}
		return security.Deny(security.ReasonIdentityBlocked, retryAfter)
	}

	if freq := g.ledger.CheckFrequency(identity, now); !freq.Allowed {
		reason := security.Reason(fmt.Sprintf("rate_limit_%s", freq.Window))
		return g.blockAndDeny(ctx, identity, reason, event, map[string]interface{}{
			"window": freq.Window,
			"limit":  freq.Limit,
			"count":  freq.Count,
		})
	}

	dup, err := g.duplicates.CheckDuplicate(identity, event.Payload, now)
	if err != nil {
		return g.malformed(err, event)
	}
	if dup.IsDuplicate {
		g.logger.WithFields(logrus.Fields{
			"identity":       identity,
			"correlation_id": event.CorrelationID,
		}).Debug("duplicate report suppressed")
		return security.Deny(security.ReasonDuplicateRequest, dup.RetryAfter)
	}

	if loop := g.analyzer.Analyze(identity, event.Payload, now); loop.IsLoop {
		g.emitter.Emit(security.NewSecurityEvent(
			security.EventLoop,
			security.NamespaceUser,
			identity,
			security.SeverityMedium,
			map[string]interface{}{
				"reason":         loop.Reason,
				"count":          loop.Count,
				"correlation_id": event.CorrelationID,
			},
			now,
		))
		return g.blockAndDeny(ctx, identity, loop.Reason, event, map[string]interface{}{"count": loop.Count})
	}

	g.ledger.Record(identity, now)
	g.analyzer.Record(identity, event.Payload, event.CorrelationID, now)
	if err := g.duplicates.Mark(identity, event.Payload, now); err != nil {
		return g.malformed(err, event)
	}
	return security.Allow()
}

func (g *guard) blockAndDeny(
	ctx context.Context,
	identity string,
	reason security.Reason,
	event security.ReportEvent,
	detail map[string]interface{},
) security.Decision {
	fields := logrus.Fields{
		"identity":       identity,
		"reason":         reason,
		"correlation_id": event.CorrelationID,
	}
	for k, v := range detail {
		fields[k] = v
	}
	g.logger.WithFields(fields).Warn("report loop violation, blocking identity")

	entry, err := g.registry.Block(ctx, identity, g.cfg.BlockDuration, string(reason))
	if err != nil {
		if domain.IsTransientDependency(err) && g.cfg.FailOpen {
			g.logger.WithError(err).Warn("block kept in memory only")
		} else {
			g.logger.WithError(err).WithField("identity", identity).Error("failed to persist block")
			return security.Deny(security.ReasonDependencyUnavailable, g.cfg.DependencyRetryAfter)
		}
	}
	return security.Deny(reason, entry.Remaining(g.timeProvider()))
}

func (g *guard) malformed(err error, event security.ReportEvent) security.Decision {
	g.logger.WithError(err).WithFields(logrus.Fields{
		"identity":       event.IdentityID,
		"correlation_id": event.CorrelationID,
	}).Warn("malformed report event")
	return security.Deny(security.ReasonProcessingError, 0)
}

func (g *guard) observe(decision security.Decision, start time.Time) {
	outcome := "allowed"
	if !decision.Allowed {
		outcome = "denied"
	}
	prometheus.DecisionsTotal.WithLabelValues(GuardName, outcome, string(decision.Reason)).Inc()
	if prometheus.Config.EnableLatency {
		prometheus.CheckLatency.WithLabelValues(GuardName).
			Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}
