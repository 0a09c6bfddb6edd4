package middleware

import (
	"strconv"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/infra/prometheus"
	"github.com/gofiber/fiber/v2"
)

type httpMetricsMiddleware struct {
	server string
}

// NewHTTPMetricsMiddleware labels requests with the matched route pattern,
// never the raw path, so identities in admin URLs do not create series.
func NewHTTPMetricsMiddleware(server string) Middleware {
	return &httpMetricsMiddleware{server: server}
}

func (m *httpMetricsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}

		prometheus.HTTPRequestsTotal.WithLabelValues(m.server, route, strconv.Itoa(status)).Inc()
		if prometheus.Config.EnableLatency {
			prometheus.HTTPRequestDuration.WithLabelValues(m.server, route).
				Observe(float64(time.Since(start).Microseconds()) / 1000)
		}
		return err
	}
}
