package http

import (
	"github.com/NeuralTrust/TrustGuard/pkg/guard/intrusion"
	"github.com/NeuralTrust/TrustGuard/pkg/handlers/http/request"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type recordLoginHandler struct {
	logger *logrus.Logger
	guard  intrusion.Guard
}

func NewRecordLoginHandler(logger *logrus.Logger, guard intrusion.Guard) Handler {
	return &recordLoginHandler{
		logger: logger,
		guard:  guard,
	}
}

// Handle @Summary Record a login attempt for anomaly detection
// @Tags Intrusion
// @Accept json
// @Param Authorization header string true "Authorization token"
// @Param payload body request.RecordLoginRequest true "Login attempt"
// @Success 202
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/intrusion/logins [post]
func (h *recordLoginHandler) Handle(c *fiber.Ctx) error {
	var req request.RecordLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	h.guard.RecordLogin(req.Address, *req.Success)
	return c.SendStatus(fiber.StatusAccepted)
}
