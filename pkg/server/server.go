package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/config"
	"github.com/NeuralTrust/TrustGuard/pkg/server/router"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Server is a listener that can be stopped from another goroutine.
type Server interface {
	Name() string
	Run() error
	Shutdown(ctx context.Context) error
}

type BaseServer struct {
	Config *config.Config
	Logger *logrus.Logger
	Router *fiber.App
	name   string
	port   int
}

func NewBaseServer(name string, port int, cfg *config.Config, logger *logrus.Logger) *BaseServer {
	// Immutable: identities taken from headers and params outlive the request.
	r := fiber.New(fiber.Config{
		AppName:                 name,
		DisableStartupMessage:   true,
		ReduceMemoryUsage:       true,
		Network:                 fiber.NetworkTCP,
		BodyLimit:               1 * 1024 * 1024,
		ReadTimeout:             cfg.Server.ReadTimeout,
		WriteTimeout:            cfg.Server.WriteTimeout,
		IdleTimeout:             120 * time.Second,
		Concurrency:             16384,
		Immutable:               true,
		EnableTrustedProxyCheck: len(cfg.Server.TrustedProxies) > 0,
		TrustedProxies:          cfg.Server.TrustedProxies,
	})

	r.Server().ReadBufferSize = 8192
	r.Server().WriteBufferSize = 8192
	r.Server().NoDefaultServerHeader = true

	return &BaseServer{
		Config: cfg,
		Logger: logger,
		Router: r,
		name:   name,
		port:   port,
	}
}

func (s *BaseServer) WithRouters(routers ...router.ServerRouter) *BaseServer {
	for _, r := range routers {
		if err := r.BuildRoutes(s.Router); err != nil {
			s.Logger.WithError(err).WithField("server", s.name).Error("failed to build routes")
		}
	}
	return s
}

func (s *BaseServer) Name() string {
	return s.name
}

func (s *BaseServer) Addr() string {
	return net.JoinHostPort(s.Config.Server.Host, fmt.Sprintf("%d", s.port))
}

// Run blocks until the listener stops. A listener closed by Shutdown is not
// reported as an error.
func (s *BaseServer) Run() error {
	s.Logger.WithFields(logrus.Fields{
		"server": s.name,
		"addr":   s.Addr(),
	}).Info("starting server")
	if err := s.Router.Listen(s.Addr()); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%s server: %w", s.name, err)
	}
	return nil
}

func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.Logger.WithField("server", s.name).Info("shutting down server")
	return s.Router.ShutdownWithContext(ctx)
}
