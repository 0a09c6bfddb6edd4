package http

import (
	"github.com/NeuralTrust/TrustGuard/pkg/common"
	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type unblockIdentityHandler struct {
	logger  *logrus.Logger
	locator AdminLocator
}

func NewUnblockIdentityHandler(logger *logrus.Logger, locator AdminLocator) Handler {
	return &unblockIdentityHandler{
		logger:  logger,
		locator: locator,
	}
}

// Handle @Summary Lift a block and reset the identity's counters
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param namespace path string true "user or address"
// @Param id path string true "Identity"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/{namespace}/identities/{id}/block [delete]
func (h *unblockIdentityHandler) Handle(c *fiber.Ctx) error {
	admin, ok := resolveAdmin(c, h.locator)
	if !ok {
		return unknownNamespace(c)
	}

	identity := utils.CopyString(c.Params("id"))
	wasBlocked, err := admin.ManualUnblock(c.UserContext(), identity)
	if domain.IsMalformedInput(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		h.logger.WithError(err).Error("manual unblock failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to unblock identity"})
	}

	h.logger.WithFields(logrus.Fields{
		"namespace": admin.Namespace(),
		"identity":  identity,
		"admin":     c.Locals(common.AdminSubjectKey),
	}).Info("identity unblocked manually")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"identity":    identity,
		"was_blocked": wasBlocked,
	})
}
