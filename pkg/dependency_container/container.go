package dependency_container

import (
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/app/protection"
	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	"github.com/NeuralTrust/TrustGuard/pkg/config"
	handlers "github.com/NeuralTrust/TrustGuard/pkg/handlers/http"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit/kafka"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/breaker"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/jwt"
	"github.com/NeuralTrust/TrustGuard/pkg/middleware"
	"github.com/NeuralTrust/TrustGuard/pkg/server"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Container struct {
	Store               cache.Store
	AuditDispatcher     audit.Dispatcher
	Protection          *protection.Protection
	JWTManager          jwt.Manager
	MiddlewareTransport *middleware.Transport
	HandlerTransport    *handlers.HandlerTransport
	closers             []func()
}

type ContainerDI struct {
	Cfg          *config.Config
	Logger       *logrus.Logger
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
	// Store replaces the configured store when set.
	Store cache.Store
}

func NewContainer(di ContainerDI) (*Container, error) {
	if di.TimeProvider == nil {
		di.TimeProvider = time.Now
	}
	if di.UuidProvider == nil {
		di.UuidProvider = uuid.New
	}
	c := &Container{}

	store := di.Store
	if store == nil {
		switch di.Cfg.Store.Type {
		case config.StoreRedis:
			redisStore := cache.NewCache(di.Cfg.Redis, breaker.WithLogger(di.Logger))
			c.closers = append(c.closers, func() {
				if err := redisStore.Close(); err != nil {
					di.Logger.WithError(err).Warn("failed to close redis client")
				}
			})
			store = redisStore
		default:
			store = cache.NewMemoryStore(di.TimeProvider)
		}
	}
	c.Store = store

	exporter, err := newAuditExporter(di.Cfg.Audit, di.Logger)
	if err != nil {
		return nil, err
	}
	dispatcher := audit.NewDispatcher(di.Logger, di.Cfg.Audit.QueueSize, exporter)
	dispatcher.StartWorkers(di.Cfg.Audit.Workers)
	c.AuditDispatcher = dispatcher

	p, err := protection.New(di.Cfg, store, dispatcher, di.Logger, &protection.Opts{TimeProvider: di.TimeProvider})
	if err != nil {
		dispatcher.Shutdown()
		c.Close()
		return nil, err
	}
	c.Protection = p

	c.JWTManager = jwt.NewJwtManager(di.Cfg.Server.SecretKey, &jwt.Opts{TimeProvider: di.TimeProvider})

	c.MiddlewareTransport = &middleware.Transport{
		RequestIDMiddleware:    middleware.NewRequestIDMiddleware(di.UuidProvider),
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(di.Logger),
		IntrusionMiddleware:    middleware.NewIntrusionMiddleware(di.Logger, p.Intrusion),
		AdminAuthMiddleware:    middleware.NewAdminAuthMiddleware(di.Logger, c.JWTManager),
		APIMetricsMiddleware:   middleware.NewHTTPMetricsMiddleware(server.APIServerName),
		AdminMetricsMiddleware: middleware.NewHTTPMetricsMiddleware(server.AdminServerName),
	}

	var pinger handlers.Pinger
	if sp, ok := store.(handlers.Pinger); ok {
		pinger = sp
	}
	c.HandlerTransport = &handlers.HandlerTransport{
		CheckReportHandler:     handlers.NewCheckReportHandler(di.Logger, p.ReportLoop, di.UuidProvider),
		RecordLoginHandler:     handlers.NewRecordLoginHandler(di.Logger, p.Intrusion),
		GetStatisticsHandler:   handlers.NewGetStatisticsHandler(di.Logger, p),
		GetIdentityHandler:     handlers.NewGetIdentityHandler(di.Logger, p),
		BlockIdentityHandler:   handlers.NewBlockIdentityHandler(di.Logger, p),
		UnblockIdentityHandler: handlers.NewUnblockIdentityHandler(di.Logger, p),
		GetVersionHandler:      handlers.NewGetVersionHandler(),
		HealthHandler:          handlers.NewHealthHandler(di.Logger, pinger, di.Cfg.Redis.Timeout),
	}

	c.closers = append([]func(){dispatcher.Shutdown}, c.closers...)
	return c, nil
}

// Close flushes the audit queue and releases the store. Safe to call on a
// partially built container.
func (c *Container) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
	c.closers = nil
}

func newAuditExporter(cfg config.AuditConfig, logger *logrus.Logger) (audit.Exporter, error) {
	switch cfg.Sink {
	case config.AuditSinkKafka:
		exporter, err := kafka.NewKafkaExporter(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		return exporter, nil
	default:
		return audit.NewLogExporter(logger), nil
	}
}
