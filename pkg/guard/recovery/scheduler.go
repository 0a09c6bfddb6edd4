package recovery

import (
	"container/heap"
	"context"
	"sync"
	"time"

	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateBlocked    State = "blocked"
	StateEligible   State = "eligible"
	StateRecovered  State = "recovered"
	StateManualHold State = "manual_hold"
)

type Config struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Backoff      time.Duration `mapstructure:"backoff"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	QuietWindow  time.Duration `mapstructure:"quiet_window"`
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 30 * time.Second,
		Backoff:      5 * time.Minute,
		MaxAttempts:  3,
		QuietWindow:  time.Hour,
	}
}

// Predicate decides whether an eligible identity may recover.
type Predicate func(entry security.BlockEntry, now time.Time) bool

// EventCounter is satisfied by the request ledgers.
type EventCounter interface {
	CountSince(identity string, since time.Time) int
}

// QuietPredicate allows recovery when the identity produced no events, and
// made no attempt while blocked, since max(blockedAt, now-window).
func QuietPredicate(window time.Duration, counters ...EventCounter) Predicate {
	return func(entry security.BlockEntry, now time.Time) bool {
		since := now.Add(-window)
		if entry.BlockedAt.After(since) {
			since = entry.BlockedAt
		}
		if entry.LastAttemptAt.After(since) {
			return false
		}
		for _, c := range counters {
			if c.CountSince(entry.Identity, since) > 0 {
				return false
			}
		}
		return true
	}
}

type TickResult struct {
	Processed int
	Recovered int
	Retried   int
	Held      int
}

type Scheduler interface {
	blocklist.Listener
	Tick(ctx context.Context, now time.Time) TickResult
	Run(ctx context.Context)
	Pending() int
	Status(identity string, now time.Time) State
	NextAttempt(identity string) (time.Time, bool)
}

type SchedulerOpts struct {
	TimeProvider func() time.Time
	Predicate    Predicate
	// OnRecovered runs after an automatic unblock, typically to reset counters.
	OnRecovered []func(identity string)
}

type scheduler struct {
	cfg          Config
	registry     blocklist.Registry
	logger       *logrus.Logger
	predicate    Predicate
	onRecovered  []func(identity string)
	timeProvider func() time.Time

	mu     sync.Mutex
	queue  attemptQueue
	items  map[string]*item
	tickMu sync.Mutex
}

// NewScheduler subscribes to the registry so every block gets exactly one
// pending attempt.
func NewScheduler(cfg Config, registry blocklist.Registry, logger *logrus.Logger, opts *SchedulerOpts) Scheduler {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = def.QuietWindow
	}

	s := &scheduler{
		cfg:          cfg,
		registry:     registry,
		logger:       logger,
		timeProvider: time.Now,
		items:        make(map[string]*item),
	}
	if opts != nil {
		if opts.TimeProvider != nil {
			s.timeProvider = opts.TimeProvider
		}
		s.predicate = opts.Predicate
		s.onRecovered = opts.OnRecovered
	}
	if s.predicate == nil {
		s.predicate = QuietPredicate(cfg.QuietWindow)
	}
	registry.Subscribe(s)
	return s
}

// OnBlocked schedules the first attempt at expiry. A re-block replaces the
// pending attempt and restarts the attempt count.
func (s *scheduler) OnBlocked(entry security.BlockEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ManualHold {
		s.removeLocked(entry.Identity)
		return
	}
	if it, ok := s.items[entry.Identity]; ok {
		it.nextAttemptAt = entry.ExpiresAt
		it.attempts = entry.Attempts
		heap.Fix(&s.queue, it.index)
	} else {
		it := &item{identity: entry.Identity, nextAttemptAt: entry.ExpiresAt, attempts: entry.Attempts}
		heap.Push(&s.queue, it)
		s.items[entry.Identity] = it
	}
	s.updateGauge()
}

func (s *scheduler) OnUnblocked(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(identity)
}

// Tick processes every attempt that is due. Overlapping ticks are skipped.
func (s *scheduler) Tick(ctx context.Context, now time.Time) TickResult {
	var result TickResult
	if !s.tickMu.TryLock() {
		return result
	}
	defer s.tickMu.Unlock()

	for _, it := range s.popDue(now) {
		result.Processed++
		s.process(ctx, it, now, &result)
	}
	return result
}

func (s *scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	s.logger.WithField("interval", s.cfg.TickInterval.String()).
		WithField("namespace", s.registry.Namespace()).
		Info("recovery scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("namespace", s.registry.Namespace()).Info("recovery scheduler stopped")
			return
		case <-ticker.C:
			res := s.Tick(ctx, s.timeProvider())
			if res.Processed > 0 {
				s.logger.WithFields(logrus.Fields{
					"namespace": s.registry.Namespace(),
					"processed": res.Processed,
					"recovered": res.Recovered,
					"retried":   res.Retried,
					"held":      res.Held,
				}).Debug("recovery tick")
			}
		}
	}
}

func (s *scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *scheduler) NextAttempt(identity string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[identity]
	if !ok {
		return time.Time{}, false
	}
	return it.nextAttemptAt, true
}

func (s *scheduler) Status(identity string, now time.Time) State {
	entry, ok := s.registry.Get(identity)
	if !ok {
		return StateRecovered
	}
	if entry.ManualHold {
		return StateManualHold
	}
	if now.Before(entry.ExpiresAt) {
		return StateBlocked
	}
	return StateEligible
}

func (s *scheduler) popDue(now time.Time) []*item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*item
	for s.queue.Len() > 0 && !s.queue[0].nextAttemptAt.After(now) {
		it := heap.Pop(&s.queue).(*item)
		delete(s.items, it.identity)
		due = append(due, it)
	}
	s.updateGauge()
	return due
}

func (s *scheduler) process(ctx context.Context, it *item, now time.Time, result *TickResult) {
	entry, ok := s.registry.Get(it.identity)
	if !ok || entry.ManualHold {
		return
	}
	// The block was extended after this attempt was queued.
	if now.Before(entry.ExpiresAt) {
		s.requeue(it, entry.ExpiresAt)
		return
	}

	log := s.logger.WithFields(logrus.Fields{
		"namespace": s.registry.Namespace(),
		"identity":  it.identity,
		"attempt":   it.attempts + 1,
	})

	if s.predicate(entry, now) {
		removed, err := s.registry.UnblockIf(ctx, it.identity, entry.BlockedAt, "recovery")
		if err != nil && !domain.IsTransientDependency(err) {
			log.WithError(err).Error("failed to unblock recovered identity")
			s.requeue(it, now.Add(s.cfg.Backoff))
			return
		}
		// Re-blocked since Get; the new block has its own schedule.
		if !removed {
			log.Debug("identity re-blocked before recovery, skipping")
			return
		}
		for _, reset := range s.onRecovered {
			reset(it.identity)
		}
		result.Recovered++
		log.Info("identity recovered")
		return
	}

	it.attempts++
	s.registry.SetAttempts(it.identity, it.attempts)
	if it.attempts > s.cfg.MaxAttempts {
		if err := s.registry.Hold(ctx, it.identity); err != nil {
			log.WithError(err).Warn("failed to persist manual hold")
		}
		result.Held++
		log.Warn("recovery attempts exhausted, identity held for manual unblock")
		return
	}
	result.Retried++
	log.Debug("identity not yet eligible for recovery")
	s.requeue(it, now.Add(s.cfg.Backoff))
}

// requeue puts the item back unless a newer block already scheduled one.
func (s *scheduler) requeue(it *item, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[it.identity]; exists {
		return
	}
	if !s.registry.IsBlocked(it.identity) {
		return
	}
	it.nextAttemptAt = at
	heap.Push(&s.queue, it)
	s.items[it.identity] = it
	s.updateGauge()
}

// removeLocked must be called with s.mu held.
func (s *scheduler) removeLocked(identity string) {
	it, ok := s.items[identity]
	if !ok {
		return
	}
	heap.Remove(&s.queue, it.index)
	delete(s.items, identity)
	s.updateGauge()
}

func (s *scheduler) updateGauge() {
	prometheus.PendingRecoveries.WithLabelValues(string(s.registry.Namespace())).Set(float64(len(s.items)))
}
