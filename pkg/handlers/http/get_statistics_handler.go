package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getStatisticsHandler struct {
	logger  *logrus.Logger
	locator AdminLocator
}

func NewGetStatisticsHandler(logger *logrus.Logger, locator AdminLocator) Handler {
	return &getStatisticsHandler{
		logger:  logger,
		locator: locator,
	}
}

// Handle @Summary Guard statistics for a namespace
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param namespace path string true "user or address"
// @Success 200 {object} protection.Statistics
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/admin/{namespace}/statistics [get]
func (h *getStatisticsHandler) Handle(c *fiber.Ctx) error {
	admin, ok := resolveAdmin(c, h.locator)
	if !ok {
		return unknownNamespace(c)
	}
	return c.Status(fiber.StatusOK).JSON(admin.Statistics())
}
