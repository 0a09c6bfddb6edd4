package http

import (
	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/report_loop"
	"github.com/NeuralTrust/TrustGuard/pkg/handlers/http/request"
	"github.com/NeuralTrust/TrustGuard/pkg/handlers/http/response"
	"github.com/NeuralTrust/TrustGuard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type checkReportHandler struct {
	logger       *logrus.Logger
	guard        report_loop.Guard
	uuidProvider func() uuid.UUID
}

func NewCheckReportHandler(logger *logrus.Logger, guard report_loop.Guard, uuidProvider func() uuid.UUID) Handler {
	if uuidProvider == nil {
		uuidProvider = uuid.New
	}
	return &checkReportHandler{
		logger:       logger,
		guard:        guard,
		uuidProvider: uuidProvider,
	}
}

// Handle @Summary Check a report submission for loops and abuse
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body request.CheckReportRequest true "Report event"
// @Success 200 {object} response.DecisionResponse
// @Failure 400 {object} response.DecisionResponse
// @Failure 429 {object} response.DecisionResponse
// @Failure 503 {object} response.DecisionResponse
// @Router /api/v1/reports/check [post]
func (h *checkReportHandler) Handle(c *fiber.Ctx) error {
	var req request.CheckReportRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Debug("failed to bind report check request")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	event := req.Event()
	if event.CorrelationID == "" {
		event.CorrelationID = utils.CopyString(c.Get(common.CorrelationIDHeader))
	}
	if event.CorrelationID == "" {
		event.CorrelationID = h.uuidProvider().String()
	}

	decision := h.guard.CheckRequestLoop(c.UserContext(), event)
	middleware.SetRetryAfter(c, decision.RetryAfter)
	return c.Status(DecisionStatus(decision)).JSON(response.FromDecision(decision, event.CorrelationID))
}

func DecisionStatus(d security.Decision) int {
	if d.Allowed {
		return fiber.StatusOK
	}
	switch d.Reason {
	case security.ReasonProcessingError:
		return fiber.StatusBadRequest
	case security.ReasonDependencyUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusTooManyRequests
	}
}
