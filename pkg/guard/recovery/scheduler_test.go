package recovery_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/recovery"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	clock     *clock
	registry  blocklist.Registry
	ledger    ledger.Ledger
	scheduler recovery.Scheduler
	resets    []string
	start     time.Time
}

func newFixture(t *testing.T) *fixture {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	f := &fixture{clock: &clock{now: start}, start: start}
	logger, _ := test.NewNullLogger()

	l, err := ledger.New("reports", ledger.DefaultWindows)
	require.NoError(t, err)
	f.ledger = l

	f.registry = blocklist.NewRegistry(security.NamespaceUser, cache.NewMemoryStore(f.clock.Now), audit.NewRecorder(), logger,
		&blocklist.RegistryOpts{TimeProvider: f.clock.Now})
	f.scheduler = recovery.NewScheduler(recovery.DefaultConfig(), f.registry, logger, &recovery.SchedulerOpts{
		TimeProvider: f.clock.Now,
		Predicate:    recovery.QuietPredicate(time.Hour, l),
		OnRecovered: []func(string){
			l.Reset,
			func(identity string) { f.resets = append(f.resets, identity) },
		},
	})
	return f
}

func (f *fixture) tickAt(d time.Duration) recovery.TickResult {
	now := f.start.Add(d)
	f.clock.Set(now)
	return f.scheduler.Tick(context.Background(), now)
}

func TestScheduler_NeverRecoversBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	f.ledger.Record("u1", f.start.Add(-2*time.Hour))
	_, err := f.registry.Block(context.Background(), "u1", 30*time.Minute, "rate_limit_minute")
	require.NoError(t, err)
	assert.Equal(t, 1, f.scheduler.Pending())

	for _, d := range []time.Duration{time.Minute, 10 * time.Minute, 29*time.Minute + 59*time.Second} {
		res := f.tickAt(d)
		assert.Zero(t, res.Processed)
		assert.True(t, f.registry.IsBlocked("u1"))
		assert.Equal(t, recovery.StateBlocked, f.scheduler.Status("u1", f.clock.Now()))
	}

	res := f.tickAt(30 * time.Minute)
	assert.Equal(t, 1, res.Recovered)
	assert.False(t, f.registry.IsBlocked("u1"))
	assert.Equal(t, recovery.StateRecovered, f.scheduler.Status("u1", f.clock.Now()))
	assert.Equal(t, []string{"u1"}, f.resets)
	assert.Equal(t, 0, f.ledger.ActiveIdentities())
	assert.Zero(t, f.scheduler.Pending())
}

func TestScheduler_ManualHoldAfterAttemptsExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Block(ctx, "u1", 30*time.Minute, "same_title_repeated")
	require.NoError(t, err)

	f.clock.Set(f.start.Add(10 * time.Minute))
	_, ok := f.registry.NoteAttempt("u1")
	require.True(t, ok)

	res := f.tickAt(30 * time.Minute)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, recovery.StateEligible, f.scheduler.Status("u1", f.clock.Now()))
	next, ok := f.scheduler.NextAttempt("u1")
	require.True(t, ok)
	assert.Equal(t, f.start.Add(35*time.Minute), next)

	assert.Equal(t, 1, f.tickAt(35*time.Minute).Retried)
	assert.Equal(t, 1, f.tickAt(40*time.Minute).Retried)
	res = f.tickAt(45 * time.Minute)
	assert.Equal(t, 1, res.Held)

	assert.True(t, f.registry.IsBlocked("u1"))
	assert.Zero(t, f.scheduler.Pending())
	assert.Equal(t, recovery.StateManualHold, f.scheduler.Status("u1", f.clock.Now()))
	entry, _ := f.registry.Get("u1")
	assert.Equal(t, 4, entry.Attempts)

	// No further automatic attempts, however long we wait.
	assert.Zero(t, f.tickAt(72*time.Hour).Processed)
	assert.True(t, f.registry.IsBlocked("u1"))

	ok, err = f.registry.Unblock(ctx, "u1", "manual")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, f.registry.IsBlocked("u1"))
}

func TestScheduler_OnePendingAttemptPerIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Block(ctx, "u1", 30*time.Minute, "rate_limit_minute")
	require.NoError(t, err)

	f.clock.Set(f.start.Add(5 * time.Minute))
	_, err = f.registry.Block(ctx, "u1", time.Hour, "rate_limit_hour")
	require.NoError(t, err)

	assert.Equal(t, 1, f.scheduler.Pending())
	next, ok := f.scheduler.NextAttempt("u1")
	require.True(t, ok)
	assert.Equal(t, f.start.Add(65*time.Minute), next)

	assert.Zero(t, f.tickAt(30*time.Minute).Processed)
	assert.Equal(t, 1, f.tickAt(65*time.Minute).Recovered)
}

func TestScheduler_ManualUnblockClearsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Block(ctx, "u1", 30*time.Minute, "rate_limit_minute")
	require.NoError(t, err)

	_, err = f.registry.Unblock(ctx, "u1", "manual")
	require.NoError(t, err)
	assert.Zero(t, f.scheduler.Pending())
	assert.Zero(t, f.tickAt(time.Hour).Processed)
}

func TestQuietPredicate(t *testing.T) {
	l, err := ledger.New("x", ledger.DefaultWindows)
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := recovery.QuietPredicate(time.Hour, l)

	entry := security.BlockEntry{Identity: "a", BlockedAt: now.Add(-30 * time.Minute)}
	l.Record("a", now.Add(-40*time.Minute))
	assert.True(t, p(entry, now), "events before the block do not count")

	l.Record("a", now.Add(-10*time.Minute))
	assert.False(t, p(entry, now))

	entry = security.BlockEntry{Identity: "b", BlockedAt: now.Add(-2 * time.Hour), LastAttemptAt: now.Add(-90 * time.Minute)}
	assert.True(t, p(entry, now))
	entry.LastAttemptAt = now.Add(-5 * time.Minute)
	assert.False(t, p(entry, now))
}

func TestScheduler_ReblockDuringRecoveryKeepsBlock(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	c := &clock{now: start}
	logger, _ := test.NewNullLogger()
	registry := blocklist.NewRegistry(security.NamespaceUser, cache.NewMemoryStore(c.Now), audit.NewRecorder(), logger,
		&blocklist.RegistryOpts{TimeProvider: c.Now})

	var resets []string
	scheduler := recovery.NewScheduler(recovery.DefaultConfig(), registry, logger, &recovery.SchedulerOpts{
		TimeProvider: c.Now,
		Predicate: func(entry security.BlockEntry, now time.Time) bool {
			_, err := registry.Block(context.Background(), entry.Identity, time.Hour, "THREAT_DETECTED")
			require.NoError(t, err)
			return true
		},
		OnRecovered: []func(string){func(identity string) { resets = append(resets, identity) }},
	})

	_, err := registry.Block(context.Background(), "u1", 30*time.Minute, "rate_limit_minute")
	require.NoError(t, err)

	now := start.Add(30 * time.Minute)
	c.Set(now)
	res := scheduler.Tick(context.Background(), now)

	assert.Zero(t, res.Recovered)
	assert.Empty(t, resets)
	assert.True(t, registry.IsBlocked("u1"))
	next, ok := scheduler.NextAttempt("u1")
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), next)
}
