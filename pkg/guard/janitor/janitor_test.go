package janitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/duplicate"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/janitor"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/pattern"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_SweepIsIdempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	start := time.Now()

	l, err := ledger.New("reports", ledger.DefaultWindows)
	require.NoError(t, err)
	p := pattern.NewAnalyzer(pattern.DefaultThresholds())
	d := duplicate.NewGuard(duplicate.DefaultConfig())

	payload := security.ReportPayload{Title: "t", Description: "d", Category: "c"}
	l.Record("old", start)
	p.Record("old", payload, "c1", start)
	require.NoError(t, d.Mark("old", payload, start))
	l.Record("fresh", start.Add(24*time.Hour))
	p.Record("fresh", payload, "c2", start.Add(24*time.Hour))
	require.NoError(t, d.Mark("fresh", payload, start.Add(24*time.Hour)))

	j := janitor.New(time.Minute, logger, nil,
		janitor.Holder{Name: "ledger", Data: l},
		janitor.Holder{Name: "pattern", Data: p},
		janitor.Holder{Name: "duplicate", Data: d},
	)

	now := start.Add(24*time.Hour + time.Minute)
	first := j.SweepOnce(now)
	assert.Equal(t, map[string]int{"ledger": 1, "pattern": 1, "duplicate": 1}, first)
	assert.Equal(t, 1, l.ActiveIdentities())
	assert.Equal(t, 1, p.ActiveIdentities())
	assert.Equal(t, 1, d.Len())

	second := j.SweepOnce(now)
	assert.Equal(t, map[string]int{"ledger": 0, "pattern": 0, "duplicate": 0}, second)
	assert.Equal(t, 1, l.ActiveIdentities())
	assert.Equal(t, 1, p.ActiveIdentities())
	assert.Equal(t, 1, d.Len())
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	j := janitor.New(10*time.Millisecond, logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
