package protection

import (
	"context"
	"errors"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	"github.com/NeuralTrust/TrustGuard/pkg/config"
	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/anomaly"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/blocklist"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/duplicate"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/intrusion"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/janitor"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/ledger"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/pattern"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/recovery"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/report_loop"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/signature"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Protection owns every piece of guard state for the process. Tests build
// their own instance; nothing here is global.
type Protection struct {
	ReportLoop report_loop.Guard
	Intrusion  intrusion.Guard

	admins     map[security.Namespace]Admin
	registries []blocklist.Registry
	schedulers []recovery.Scheduler
	janitor    janitor.Janitor
	logger     *logrus.Logger
}

type Opts struct {
	TimeProvider func() time.Time
}

// New compiles signatures and thresholds first so a bad table aborts startup
// with a ConfigurationError before any state is created.
func New(
	cfg *config.Config,
	store cache.Store,
	emitter audit.Emitter,
	logger *logrus.Logger,
	opts *Opts,
) (*Protection, error) {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	if emitter == nil {
		emitter = audit.NopEmitter()
	}

	scanner, err := signature.NewScanner(cfg.Signatures)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"signatures": scanner.Signatures(),
		"custom":     len(cfg.Signatures),
	}).Info("signature table compiled")
	detector, err := anomaly.NewDetector(cfg.Intrusion.Anomaly)
	if err != nil {
		return nil, err
	}
	reports, err := ledger.New("reports", cfg.ReportLoop.LedgerWindows())
	if err != nil {
		return nil, domain.NewConfigurationError("report_loop.windows", "%v", err)
	}

	registryOpts := &blocklist.RegistryOpts{
		TimeProvider: timeProvider,
		PersistGrace: cfg.Store.PersistGrace,
	}
	users := blocklist.NewRegistry(security.NamespaceUser, store, emitter, logger, registryOpts)
	addresses := blocklist.NewRegistry(security.NamespaceAddress, store, emitter, logger, registryOpts)

	analyzer := pattern.NewAnalyzer(cfg.ReportLoop.Pattern)
	duplicates := duplicate.NewGuard(cfg.ReportLoop.Duplicate)

	reportLoop := report_loop.NewGuard(
		report_loop.Config{
			BlockDuration:        cfg.ReportLoop.BlockDuration,
			EligibleRetryAfter:   cfg.ReportLoop.EligibleRetryAfter,
			DependencyRetryAfter: cfg.ReportLoop.DependencyRetryAfter,
			FailOpen:             cfg.Store.FailOpen,
		},
		users, reports, analyzer, duplicates, emitter, logger,
		&report_loop.Opts{TimeProvider: timeProvider},
	)

	intrusionGuard, err := intrusion.NewGuard(
		intrusion.Config{
			ThreatBlockDuration:  cfg.Intrusion.ThreatBlockDuration,
			AnomalyBlockDuration: cfg.Intrusion.AnomalyBlockDuration,
			AnomalyBlockCount:    cfg.Intrusion.AnomalyBlockCount,
			LoginWindow:          cfg.Intrusion.LoginWindow,
			DependencyRetryAfter: cfg.Intrusion.DependencyRetryAfter,
			FailOpen:             cfg.Store.FailOpen,
		},
		addresses, scanner, detector, emitter, logger,
		&intrusion.Opts{TimeProvider: timeProvider},
	)
	if err != nil {
		return nil, err
	}
	addressLedgers := intrusionGuard.Ledgers()

	userResetters := []func(string){reports.Reset, analyzer.Reset}
	addressResetters := make([]func(string), 0, len(addressLedgers))
	counters := make([]recovery.EventCounter, 0, len(addressLedgers))
	for _, l := range addressLedgers {
		addressResetters = append(addressResetters, l.Reset)
		counters = append(counters, l)
	}

	userScheduler := recovery.NewScheduler(cfg.Recovery, users, logger, &recovery.SchedulerOpts{
		TimeProvider: timeProvider,
		Predicate:    recovery.QuietPredicate(cfg.Recovery.QuietWindow, reports),
		OnRecovered:  userResetters,
	})
	addressScheduler := recovery.NewScheduler(cfg.Recovery, addresses, logger, &recovery.SchedulerOpts{
		TimeProvider: timeProvider,
		// Login telemetry keeps arriving while blocked; only requests and
		// failures count against recovery.
		Predicate:   recovery.QuietPredicate(cfg.Recovery.QuietWindow, counters[0], counters[2]),
		OnRecovered: addressResetters,
	})

	holders := []janitor.Holder{
		{Name: "report_ledger", Data: reports},
		{Name: "pattern_entries", Data: analyzer},
		{Name: "duplicate_marks", Data: duplicates},
	}
	for _, l := range addressLedgers {
		holders = append(holders, janitor.Holder{Name: l.Name() + "_ledger", Data: l})
	}

	return &Protection{
		ReportLoop: reportLoop,
		Intrusion:  intrusionGuard,
		admins: map[security.Namespace]Admin{
			security.NamespaceUser: &namespaceAdmin{
				registry:     users,
				scheduler:    userScheduler,
				ledgers:      []ledger.Ledger{reports},
				resetters:    userResetters,
				logger:       logger,
				timeProvider: timeProvider,
			},
			security.NamespaceAddress: &namespaceAdmin{
				registry:     addresses,
				scheduler:    addressScheduler,
				ledgers:      addressLedgers,
				resetters:    addressResetters,
				logger:       logger,
				timeProvider: timeProvider,
			},
		},
		registries: []blocklist.Registry{users, addresses},
		schedulers: []recovery.Scheduler{userScheduler, addressScheduler},
		janitor:    janitor.New(cfg.Janitor.Interval, logger, &janitor.Opts{TimeProvider: timeProvider}, holders...),
		logger:     logger,
	}, nil
}

func (p *Protection) Admin(namespace security.Namespace) (Admin, bool) {
	a, ok := p.admins[namespace]
	return a, ok
}

// Restore reloads persisted blocks into both registries. A store outage is
// logged and startup continues with empty registries.
func (p *Protection) Restore(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, r := range p.registries {
		n, err := r.Restore(ctx)
		total += n
		if err != nil {
			if domain.IsTransientDependency(err) {
				p.logger.WithError(err).WithField("namespace", r.Namespace()).
					Warn("could not restore persisted blocks")
				continue
			}
			errs = append(errs, err)
		}
		p.logger.WithFields(logrus.Fields{
			"namespace": r.Namespace(),
			"restored":  n,
		}).Info("persisted blocks restored")
	}
	return total, errors.Join(errs...)
}

// Run drives the recovery schedulers and the janitor until ctx is done.
func (p *Protection) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range p.schedulers {
		s := s
		g.Go(func() error {
			s.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		p.janitor.Run(ctx)
		return nil
	})
	return g.Wait()
}

// Tick runs one recovery tick in every namespace.
func (p *Protection) Tick(ctx context.Context, now time.Time) recovery.TickResult {
	var total recovery.TickResult
	for _, s := range p.schedulers {
		res := s.Tick(ctx, now)
		total.Processed += res.Processed
		total.Recovered += res.Recovered
		total.Retried += res.Retried
		total.Held += res.Held
	}
	return total
}

func (p *Protection) Sweep(now time.Time) map[string]int {
	return p.janitor.SweepOnce(now)
}
