package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

// Sweepable is a data holder that can drop expired state.
type Sweepable interface {
	Sweep(now time.Time) int
}

type Holder struct {
	Name string
	Data Sweepable
}

type Janitor interface {
	SweepOnce(now time.Time) map[string]int
	Run(ctx context.Context)
}

type Opts struct {
	TimeProvider func() time.Time
}

type janitor struct {
	interval     time.Duration
	holders      []Holder
	logger       *logrus.Logger
	timeProvider func() time.Time
	mu           sync.Mutex
}

// New registers the holders to sweep. Block entries are never handed to the
// janitor; recovery owns them.
func New(interval time.Duration, logger *logrus.Logger, opts *Opts, holders ...Holder) Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	return &janitor{
		interval:     interval,
		holders:      holders,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// SweepOnce sweeps every holder and reports how much each removed. A second
// run with no new events removes nothing.
func (j *janitor) SweepOnce(now time.Time) map[string]int {
	j.mu.Lock()
	defer j.mu.Unlock()

	removed := make(map[string]int, len(j.holders))
	for _, h := range j.holders {
		n := h.Data.Sweep(now)
		removed[h.Name] = n
		if n > 0 {
			prometheus.JanitorRemovedTotal.WithLabelValues(h.Name).Add(float64(n))
		}
	}
	return removed
}

func (j *janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.logger.WithField("interval", j.interval.String()).Info("janitor started")
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			removed := j.SweepOnce(j.timeProvider())
			j.logger.WithField("removed", removed).Debug("janitor sweep finished")
		}
	}
}
