package report_loop_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/duplicate"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/pattern"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/report_loop"
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

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (brokenStore) SetWithExpiry(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("down") }
func (brokenStore) KeysMatching(context.Context, string) ([]string, error) {
	return nil, errors.New("down")
}

type fixture struct {
	clock    *clock
	guard    report_loop.Guard
	registry blocklist.Registry
	ledger   ledger.Ledger
	recorder *audit.Recorder
}

type options struct {
	store    cache.Store
	windows  []ledger.Window
	failOpen bool
}

func newFixture(t *testing.T, o options) *fixture {
	c := &clock{now: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	logger, _ := test.NewNullLogger()
	rec := audit.NewRecorder()
	if o.store == nil {
		o.store = cache.NewMemoryStore(c.Now)
	}
	if o.windows == nil {
		o.windows = ledger.DefaultWindows
	}
	l, err := ledger.New("reports", o.windows)
	require.NoError(t, err)

	registry := blocklist.NewRegistry(security.NamespaceUser, o.store, rec, logger,
		&blocklist.RegistryOpts{TimeProvider: c.Now})
	cfg := report_loop.DefaultConfig()
	cfg.FailOpen = o.failOpen
	g := report_loop.NewGuard(cfg, registry, l,
		pattern.NewAnalyzer(pattern.DefaultThresholds()),
		duplicate.NewGuard(duplicate.DefaultConfig()),
		rec, logger, &report_loop.Opts{TimeProvider: c.Now})
	return &fixture{clock: c, guard: g, registry: registry, ledger: l, recorder: rec}
}

func report(identity, title, description, category string) security.ReportEvent {
	return security.ReportEvent{
		IdentityID: identity,
		Payload:    security.ReportPayload{Title: title, Description: description, Category: category},
	}
}

func TestCheckRequestLoop_SameTitleBlocks(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d := f.guard.CheckRequestLoop(ctx, report("u1", "Broken link", fmt.Sprintf("page %d", i), fmt.Sprintf("c%d", i)))
		assert.True(t, d.Allowed)
		f.clock.Advance(time.Minute)
	}

	d := f.guard.CheckRequestLoop(ctx, report("u1", "broken link", "page 9", "c9"))
	assert.False(t, d.Allowed)
	assert.Equal(t, security.ReasonSameTitleRepeated, d.Reason)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
	assert.True(t, f.registry.IsBlocked("u1"))
	assert.Len(t, f.recorder.OfType(security.EventLoop), 1)
	assert.Len(t, f.recorder.OfType(security.EventBlocked), 1)

	f.clock.Advance(time.Minute)
	d = f.guard.CheckRequestLoop(ctx, report("u1", "new", "new", "new"))
	assert.Equal(t, security.ReasonIdentityBlocked, d.Reason)
	assert.Equal(t, 29*time.Minute, d.RetryAfter)
	entry, _ := f.registry.Get("u1")
	assert.Equal(t, f.clock.Now(), entry.LastAttemptAt)

	// Other users are unaffected.
	assert.True(t, f.guard.CheckRequestLoop(ctx, report("u2", "broken link", "x", "y")).Allowed)
}

func TestCheckRequestLoop_DuplicateSurvivesCounterReset(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()
	event := report("u1", "Spam!", "Buy now", "ads")

	assert.True(t, f.guard.CheckRequestLoop(ctx, event).Allowed)
	f.ledger.Reset("u1")
	f.clock.Advance(4 * time.Minute)

	d := f.guard.CheckRequestLoop(ctx, report("u1", "spam", "buy now!", "ads"))
	assert.False(t, d.Allowed)
	assert.Equal(t, security.ReasonDuplicateRequest, d.Reason)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.False(t, f.registry.IsBlocked("u1"))

	f.clock.Advance(11 * time.Minute)
	assert.True(t, f.guard.CheckRequestLoop(ctx, event).Allowed)
}

func TestCheckRequestLoop_MinuteCap(t *testing.T) {
	f := newFixture(t, options{windows: []ledger.Window{
		{Name: "minute", Span: time.Minute, Limit: 3},
		{Name: "hour", Span: time.Hour, Limit: 50},
		{Name: "day", Span: 24 * time.Hour, Limit: 200},
	}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := f.guard.CheckRequestLoop(ctx, report("u1", fmt.Sprintf("t%d", i), fmt.Sprintf("d%d", i), fmt.Sprintf("c%d", i)))
		require.True(t, d.Allowed)
		f.clock.Advance(10 * time.Second)
	}

	d := f.guard.CheckRequestLoop(ctx, report("u1", "t9", "d9", "c9"))
	assert.Equal(t, security.ReasonRateLimitMinute, d.Reason)
	assert.True(t, f.registry.IsBlocked("u1"))
}

func TestCheckRequestLoop_MalformedInput(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	d := f.guard.CheckRequestLoop(ctx, report("", "t", "d", "c"))
	assert.Equal(t, security.ReasonProcessingError, d.Reason)

	d = f.guard.CheckRequestLoop(ctx, report("u1", " ", "", "c"))
	assert.Equal(t, security.ReasonProcessingError, d.Reason)
	assert.NotEmpty(t, d.Message)
	assert.Equal(t, 0, f.ledger.ActiveIdentities())
}

func TestCheckRequestLoop_StoreFailure(t *testing.T) {
	tests := []struct {
		name     string
		failOpen bool
		want     security.Reason
	}{
		{name: "fail closed", failOpen: false, want: security.ReasonDependencyUnavailable},
		{name: "fail open", failOpen: true, want: security.ReasonSameDescriptionRepeated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, options{store: brokenStore{}, failOpen: tt.failOpen})
			ctx := context.Background()

			require.True(t, f.guard.CheckRequestLoop(ctx, report("u1", "a", "same text", "x")).Allowed)
			f.clock.Advance(time.Minute)
			d := f.guard.CheckRequestLoop(ctx, report("u1", "b", "same text", "y"))
			assert.Equal(t, tt.want, d.Reason)
			assert.Positive(t, d.RetryAfter)
			assert.True(t, f.registry.IsBlocked("u1"))
		})
	}
}
