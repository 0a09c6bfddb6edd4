package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type getIdentityHandler struct {
	logger  *logrus.Logger
	locator AdminLocator
}

func NewGetIdentityHandler(logger *logrus.Logger, locator AdminLocator) Handler {
	return &getIdentityHandler{
		logger:  logger,
		locator: locator,
	}
}

// Handle @Summary Block state and counters of one identity
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param namespace path string true "user or address"
// @Param id path string true "Identity"
// @Success 200 {object} protection.IdentityStatus
// @Router /api/v1/admin/{namespace}/identities/{id} [get]
func (h *getIdentityHandler) Handle(c *fiber.Ctx) error {
	admin, ok := resolveAdmin(c, h.locator)
	if !ok {
		return unknownNamespace(c)
	}
	return c.Status(fiber.StatusOK).JSON(admin.IdentityStatus(utils.CopyString(c.Params("id"))))
}
