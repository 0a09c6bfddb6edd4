package blocklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	blockedKey        = "blocked:%s:%s"
	blockedKeyPattern = "blocked:%s:*"

	// DefaultPersistGrace keeps a persisted entry around long enough for the
	// recovery attempts that follow expiry.
	DefaultPersistGrace = time.Hour
)

// Listener is notified after the in-memory state changed. Callbacks run
// outside the registry lock.
type Listener interface {
	OnBlocked(entry security.BlockEntry)
	OnUnblocked(identity string)
}

type Registry interface {
	Block(ctx context.Context, identity string, duration time.Duration, reason string) (security.BlockEntry, error)
	Unblock(ctx context.Context, identity string, cause string) (bool, error)
	UnblockIf(ctx context.Context, identity string, blockedAt time.Time, cause string) (bool, error)
	IsBlocked(identity string) bool
	Get(identity string) (security.BlockEntry, bool)
	NoteAttempt(identity string) (security.BlockEntry, bool)
	SetAttempts(identity string, attempts int)
	Hold(ctx context.Context, identity string) error
	Restore(ctx context.Context) (int, error)
	Subscribe(l Listener)
	Entries() []security.BlockEntry
	Len() int
	Namespace() security.Namespace
}

type RegistryOpts struct {
	TimeProvider func() time.Time
	PersistGrace time.Duration
}

type registry struct {
	namespace    security.Namespace
	store        cache.Store
	emitter      audit.Emitter
	logger       *logrus.Logger
	timeProvider func() time.Time
	grace        time.Duration

	mu        sync.RWMutex
	entries   map[string]*security.BlockEntry
	listeners []Listener
}

// NewRegistry builds the block registry of one namespace. The in-memory map is
// authoritative; the store only makes blocks survive a restart.
func NewRegistry(
	namespace security.Namespace,
	store cache.Store,
	emitter audit.Emitter,
	logger *logrus.Logger,
	opts *RegistryOpts,
) Registry {
	timeProvider := time.Now
	grace := DefaultPersistGrace
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	if opts != nil && opts.PersistGrace > 0 {
		grace = opts.PersistGrace
	}
	if emitter == nil {
		emitter = audit.NopEmitter()
	}
	return &registry{
		namespace:    namespace,
		store:        store,
		emitter:      emitter,
		logger:       logger,
		timeProvider: timeProvider,
		grace:        grace,
		entries:      make(map[string]*security.BlockEntry),
	}
}

func (r *registry) Namespace() security.Namespace {
	return r.namespace
}

func (r *registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Block creates or extends a block. A re-block never shortens the existing
// expiry and restarts the recovery attempt count. The entry is visible before
// the store is written; a store failure is returned as a
// TransientDependencyError with the block still in place.
func (r *registry) Block(
	ctx context.Context,
	identity string,
	duration time.Duration,
	reason string,
) (security.BlockEntry, error) {
	if identity == "" {
		return security.BlockEntry{}, domain.NewMalformedInputError("identity", "is empty")
	}
	if duration <= 0 {
		return security.BlockEntry{}, fmt.Errorf("block duration must be positive, got %s", duration)
	}
	now := r.timeProvider()
	expiresAt := now.Add(duration)

	r.mu.Lock()
	entry, exists := r.entries[identity]
	if exists {
		if entry.ExpiresAt.After(expiresAt) {
			expiresAt = entry.ExpiresAt
		}
		entry.Reason = reason
		entry.BlockedAt = now
		entry.ExpiresAt = expiresAt
		entry.Attempts = 0
		entry.ManualHold = false
		entry.LastAttemptAt = time.Time{}
	} else {
		entry = &security.BlockEntry{
			Namespace: r.namespace,
			Identity:  identity,
			Reason:    reason,
			BlockedAt: now,
			ExpiresAt: expiresAt,
		}
		r.entries[identity] = entry
	}
	snapshot := *entry
	listeners := r.snapshotListeners()
	blocked := len(r.entries)
	r.mu.Unlock()

	prometheus.BlocksTotal.WithLabelValues(string(r.namespace), reason).Inc()
	prometheus.BlockedIdentities.WithLabelValues(string(r.namespace)).Set(float64(blocked))
	r.emitter.Emit(security.NewSecurityEvent(
		security.EventBlocked,
		r.namespace,
		identity,
		security.SeverityHigh,
		map[string]interface{}{
			"reason":     reason,
			"duration":   duration.String(),
			"expires_at": snapshot.ExpiresAt,
			"extended":   exists,
		},
		now,
	))
	for _, l := range listeners {
		l.OnBlocked(snapshot)
	}

	if err := r.persist(ctx, snapshot, now); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// Unblock removes the entry. It reports whether the identity was blocked.
func (r *registry) Unblock(ctx context.Context, identity string, cause string) (bool, error) {
	return r.unblock(ctx, identity, cause, func(*security.BlockEntry) bool { return true })
}

// UnblockIf removes the entry only while it still belongs to the block that
// started at blockedAt. A re-block in between keeps the identity blocked and
// reports false.
func (r *registry) UnblockIf(
	ctx context.Context,
	identity string,
	blockedAt time.Time,
	cause string,
) (bool, error) {
	return r.unblock(ctx, identity, cause, func(entry *security.BlockEntry) bool {
		return entry.BlockedAt.Equal(blockedAt)
	})
}

func (r *registry) unblock(
	ctx context.Context,
	identity string,
	cause string,
	match func(*security.BlockEntry) bool,
) (bool, error) {
	r.mu.Lock()
	entry, exists := r.entries[identity]
	if !exists || !match(entry) {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.entries, identity)
	listeners := r.snapshotListeners()
	blocked := len(r.entries)
	r.mu.Unlock()

	prometheus.UnblocksTotal.WithLabelValues(string(r.namespace), cause).Inc()
	prometheus.BlockedIdentities.WithLabelValues(string(r.namespace)).Set(float64(blocked))
	r.emitter.Emit(security.NewSecurityEvent(
		security.EventUnblocked,
		r.namespace,
		identity,
		security.SeverityLow,
		map[string]interface{}{"cause": cause},
		r.timeProvider(),
	))
	for _, l := range listeners {
		l.OnUnblocked(identity)
	}

	if err := r.store.Delete(ctx, r.key(identity)); err != nil {
		prometheus.StoreErrorsTotal.WithLabelValues("delete").Inc()
		r.logger.WithError(err).WithField("identity", identity).Warn("failed to delete persisted block")
		return true, domain.NewTransientDependencyError("delete block", err)
	}
	return true, nil
}

// IsBlocked only reads memory. An expired cooldown does not unblock; recovery
// or a manual unblock does.
func (r *registry) IsBlocked(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[identity]
	return ok
}

func (r *registry) Get(identity string) (security.BlockEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[identity]
	if !ok {
		return security.BlockEntry{}, false
	}
	return *entry, true
}

// NoteAttempt records that a blocked identity tried again.
func (r *registry) NoteAttempt(identity string) (security.BlockEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[identity]
	if !ok {
		return security.BlockEntry{}, false
	}
	entry.LastAttemptAt = r.timeProvider()
	return *entry, true
}

func (r *registry) SetAttempts(identity string, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[identity]; ok {
		entry.Attempts = attempts
	}
}

// Hold keeps the identity blocked until an administrator unblocks it.
func (r *registry) Hold(ctx context.Context, identity string) error {
	r.mu.Lock()
	entry, ok := r.entries[identity]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	entry.ManualHold = true
	snapshot := *entry
	r.mu.Unlock()

	now := r.timeProvider()
	r.emitter.Emit(security.NewSecurityEvent(
		security.EventManualHold,
		r.namespace,
		identity,
		security.SeverityMedium,
		map[string]interface{}{
			"reason":   snapshot.Reason,
			"attempts": snapshot.Attempts,
		},
		now,
	))
	return r.persist(ctx, snapshot, now)
}

// Restore loads persisted entries that are not in memory yet and notifies the
// listeners so recovery picks them up again.
func (r *registry) Restore(ctx context.Context) (int, error) {
	keys, err := r.store.KeysMatching(ctx, fmt.Sprintf(blockedKeyPattern, r.namespace))
	if err != nil {
		prometheus.StoreErrorsTotal.WithLabelValues("scan").Inc()
		return 0, domain.NewTransientDependencyError("restore blocks", err)
	}

	restored := make([]security.BlockEntry, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			prometheus.StoreErrorsTotal.WithLabelValues("get").Inc()
			return len(restored), domain.NewTransientDependencyError("restore blocks", err)
		}
		var entry security.BlockEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			r.logger.WithError(err).WithField("key", key).Warn("skipping unreadable block entry")
			continue
		}
		if entry.Identity == "" {
			entry.Identity = strings.TrimPrefix(key, fmt.Sprintf(blockedKey, r.namespace, ""))
		}
		entry.Namespace = r.namespace

		r.mu.Lock()
		if _, exists := r.entries[entry.Identity]; exists {
			r.mu.Unlock()
			continue
		}
		stored := entry
		r.entries[entry.Identity] = &stored
		r.mu.Unlock()
		restored = append(restored, entry)
	}

	r.mu.RLock()
	listeners := r.snapshotListeners()
	blocked := len(r.entries)
	r.mu.RUnlock()

	prometheus.BlockedIdentities.WithLabelValues(string(r.namespace)).Set(float64(blocked))
	for _, entry := range restored {
		for _, l := range listeners {
			l.OnBlocked(entry)
		}
	}
	return len(restored), nil
}

func (r *registry) Entries() []security.BlockEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]security.BlockEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *registry) persist(ctx context.Context, entry security.BlockEntry, now time.Time) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal block entry: %w", err)
	}
	var ttl time.Duration
	if !entry.ManualHold {
		ttl = entry.Remaining(now) + r.grace
	}
	if err := r.store.SetWithExpiry(ctx, r.key(entry.Identity), string(data), ttl); err != nil {
		prometheus.StoreErrorsTotal.WithLabelValues("set").Inc()
		r.logger.WithError(err).WithFields(logrus.Fields{
			"namespace": r.namespace,
			"identity":  entry.Identity,
		}).Warn("failed to persist block, keeping it in memory only")
		return domain.NewTransientDependencyError("persist block", err)
	}
	return nil
}

func (r *registry) key(identity string) string {
	return fmt.Sprintf(blockedKey, r.namespace, identity)
}

// snapshotListeners must be called with r.mu held.
func (r *registry) snapshotListeners() []Listener {
	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}
