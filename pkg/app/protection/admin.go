package protection

import (
	"context"
	"strings"
	"time"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/recovery"
	"github.com/sirupsen/logrus"
)

const manualCause = "manual"

type Statistics struct {
	Namespace         security.Namespace `json:"namespace"`
	BlockedCount      int                `json:"blockedCount"`
	ActiveIdentities  int                `json:"activeIdentities"`
	TotalEvents       int                `json:"totalEvents"`
	PendingRecoveries int                `json:"pendingRecoveries"`
}

type IdentityStatus struct {
	Identity     string               `json:"identity"`
	IsBlocked    bool                 `json:"isBlocked"`
	State        recovery.State       `json:"state"`
	Counters     map[string]int       `json:"counters"`
	RetryAfterMs int64                `json:"retryAfterMs"`
	Block        *security.BlockEntry `json:"block,omitempty"`
}

// Admin is the administrative surface of one namespace.
type Admin interface {
	Namespace() security.Namespace
	Statistics() Statistics
	IdentityStatus(identity string) IdentityStatus
	ManualUnblock(ctx context.Context, identity string) (bool, error)
	ManualBlock(ctx context.Context, identity string, duration time.Duration, reason string) (security.BlockEntry, error)
}

type namespaceAdmin struct {
	registry     blocklist.Registry
	scheduler    recovery.Scheduler
	ledgers      []ledger.Ledger
	resetters    []func(identity string)
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func (a *namespaceAdmin) Namespace() security.Namespace {
	return a.registry.Namespace()
}

func (a *namespaceAdmin) Statistics() Statistics {
	stats := Statistics{
		Namespace:         a.registry.Namespace(),
		BlockedCount:      a.registry.Len(),
		PendingRecoveries: a.scheduler.Pending(),
	}
	if len(a.ledgers) > 0 {
		stats.ActiveIdentities = a.ledgers[0].ActiveIdentities()
	}
	for _, l := range a.ledgers {
		stats.TotalEvents += l.TotalEvents()
	}
	return stats
}

func (a *namespaceAdmin) IdentityStatus(identity string) IdentityStatus {
	now := a.timeProvider()
	status := IdentityStatus{
		Identity: identity,
		State:    a.scheduler.Status(identity, now),
		Counters: make(map[string]int),
	}
	for _, l := range a.ledgers {
		for name, count := range l.Counters(identity, now) {
			status.Counters[name] = count
		}
	}

	entry, blocked := a.registry.Get(identity)
	if !blocked {
		return status
	}
	status.IsBlocked = true
	status.Block = &entry
	retryAfter := entry.Remaining(now)
	if retryAfter == 0 && !entry.ManualHold {
		if next, ok := a.scheduler.NextAttempt(identity); ok && next.After(now) {
			retryAfter = next.Sub(now)
		}
	}
	status.RetryAfterMs = retryAfter.Milliseconds()
	return status
}

// ManualUnblock lifts the block and zeroes the identity's counters whether or
// not it was blocked. Duplicate marks are left alone.
func (a *namespaceAdmin) ManualUnblock(ctx context.Context, identity string) (bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, domain.NewMalformedInputError("identity", "is empty")
	}
	unblocked, err := a.registry.Unblock(ctx, identity, manualCause)
	if err != nil && !domain.IsTransientDependency(err) {
		return unblocked, err
	}
	if err != nil {
		a.logger.WithError(err).WithField("identity", identity).
			Warn("manual unblock applied in memory only")
	}
	for _, reset := range a.resetters {
		reset(identity)
	}
	a.logger.WithFields(logrus.Fields{
		"namespace":   a.registry.Namespace(),
		"identity":    identity,
		"was_blocked": unblocked,
	}).Info("manual unblock")
	return unblocked, nil
}

func (a *namespaceAdmin) ManualBlock(
	ctx context.Context,
	identity string,
	duration time.Duration,
	reason string,
) (security.BlockEntry, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return security.BlockEntry{}, domain.NewMalformedInputError("identity", "is empty")
	}
	if duration <= 0 {
		return security.BlockEntry{}, domain.NewMalformedInputError("duration", "must be positive")
	}
	if reason == "" {
		reason = string(security.ReasonManualBlock)
	}
	return a.registry.Block(ctx, identity, duration, reason)
}
