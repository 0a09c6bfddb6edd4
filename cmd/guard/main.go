package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NeuralTrust/TrustGuard/pkg/config"
	"github.com/NeuralTrust/TrustGuard/pkg/dependency_container"
	infraLogger "github.com/NeuralTrust/TrustGuard/pkg/infra/logger"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustGuard/pkg/server"
	"github.com/NeuralTrust/TrustGuard/pkg/server/router"
	"github.com/NeuralTrust/TrustGuard/pkg/version"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	if err := config.Load(configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	logger, closeLogs, err := infraLogger.NewLogger(infraLogger.Options{
		Service: "guard",
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Console: cfg.Log.Console,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer closeLogs()
	logger.WithField("version", version.GetInfo().String()).Info("starting TrustGuard")

	if cfg.Metrics.Enabled {
		prometheus.Initialize(cfg.Metrics.MetricsConfig)
	}

	container, err := dependency_container.NewContainer(dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Error("failed to build dependencies")
		closeLogs()
		os.Exit(1)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := container.Protection.Restore(ctx); err != nil {
		logger.WithError(err).Warn("block restore finished with errors")
	} else {
		logger.WithField("restored", n).Info("block registries ready")
	}

	servers := []server.Server{
		server.NewAPIServer(server.APIServerDI{
			Config:  cfg,
			Logger:  logger,
			Routers: []router.ServerRouter{router.NewAPIRouter(container.MiddlewareTransport, container.HandlerTransport)},
		}),
		server.NewAdminServer(server.AdminServerDI{
			Config:  cfg,
			Logger:  logger,
			Routers: []router.ServerRouter{router.NewAdminRouter(container.MiddlewareTransport, container.HandlerTransport)},
		}),
	}
	if cfg.Metrics.Enabled {
		servers = append(servers, server.NewMetricsServer(cfg, logger))
	} else {
		logger.Info("prometheus metrics are disabled by configuration")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return container.Protection.Run(gctx)
	})
	for _, srv := range servers {
		srv := srv
		g.Go(srv.Run)
	}

	// Stop every listener once a signal arrives or any server fails.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("guard stopped with error")
		container.Close()
		closeLogs()
		os.Exit(1)
	}
	logger.Info("guard gracefully stopped")
}
