package server

import (
	"github.com/NeuralTrust/TrustGuard/pkg/config"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	MetricsServerName = "metrics"
	MetricsPath       = "/metrics"
)

type MetricsServer struct {
	*BaseServer
}

// NewMetricsServer exposes the guard registry in the Prometheus text format.
func NewMetricsServer(cfg *config.Config, logger *logrus.Logger) *MetricsServer {
	s := &MetricsServer{
		BaseServer: NewBaseServer(MetricsServerName, cfg.Server.MetricsPort, cfg, logger),
	}
	handler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(prometheus.Gatherer(), promhttp.HandlerOpts{}),
	)
	s.Router.Use(recover.New())
	s.Router.Get(MetricsPath, func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	})
	return s
}
