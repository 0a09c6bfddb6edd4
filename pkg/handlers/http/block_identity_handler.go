package http

import (
	"github.com/NeuralTrust/TrustGuard/pkg/common"
	domain "github.com/NeuralTrust/TrustGuard/pkg/domain/errors"
	"github.com/NeuralTrust/TrustGuard/pkg/handlers/http/request"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type blockIdentityHandler struct {
	logger  *logrus.Logger
	locator AdminLocator
}

func NewBlockIdentityHandler(logger *logrus.Logger, locator AdminLocator) Handler {
	return &blockIdentityHandler{
		logger:  logger,
		locator: locator,
	}
}

// Handle @Summary Block an identity manually
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param namespace path string true "user or address"
// @Param id path string true "Identity"
// @Param payload body request.BlockIdentityRequest true "Block duration and reason"
// @Success 201 {object} security.BlockEntry
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/admin/{namespace}/identities/{id}/block [post]
func (h *blockIdentityHandler) Handle(c *fiber.Ctx) error {
	admin, ok := resolveAdmin(c, h.locator)
	if !ok {
		return unknownNamespace(c)
	}

	var req request.BlockIdentityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	duration, err := req.Validate()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	entry, err := admin.ManualBlock(c.UserContext(), utils.CopyString(c.Params("id")), duration, req.Reason)
	switch {
	case domain.IsMalformedInput(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case domain.IsTransientDependency(err):
		// The block is in place in memory; it will not survive a restart.
		h.logger.WithError(err).WithField("identity", entry.Identity).Warn("manual block not persisted")
	case err != nil:
		h.logger.WithError(err).Error("manual block failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to block identity"})
	}

	h.logger.WithFields(logrus.Fields{
		"namespace": admin.Namespace(),
		"identity":  entry.Identity,
		"duration":  duration.String(),
		"admin":     c.Locals(common.AdminSubjectKey),
	}).Info("identity blocked manually")
	return c.Status(fiber.StatusCreated).JSON(entry)
}
