package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	logger  *logrus.Logger
	store   Pinger
	timeout time.Duration
}

// NewHealthHandler reports degraded when the store is unreachable. A nil
// store is always healthy.
func NewHealthHandler(logger *logrus.Logger, store Pinger, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &healthHandler{
		logger:  logger,
		store:   store,
		timeout: timeout,
	}
}

func (h *healthHandler) Handle(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("health check: store unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"store":  "unreachable",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "store": "ok"})
}
