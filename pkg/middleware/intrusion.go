package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	"github.com/NeuralTrust/TrustGuard/pkg/guard/intrusion"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every denial written by this service.
type ErrorResponse struct {
	Error        string                 `json:"error"`
	ReasonCode   security.Reason        `json:"reason_code,omitempty"`
	Threats      []security.ThreatMatch `json:"threats,omitempty"`
	Anomalies    []security.Anomaly     `json:"anomalies,omitempty"`
	RetryAfterMs int64                  `json:"retry_after_ms,omitempty"`
}

type intrusionMiddleware struct {
	logger *logrus.Logger
	guard  intrusion.Guard
}

func NewIntrusionMiddleware(logger *logrus.Logger, guard intrusion.Guard) Middleware {
	return &intrusionMiddleware{
		logger: logger,
		guard:  guard,
	}
}

func (m *intrusionMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot := Snapshot(c)
		c.Locals(common.ClientAddressKey, snapshot.SourceAddress)

		verdict := m.guard.Inspect(c.UserContext(), snapshot)
		c.Locals(common.IntrusionVerdict, verdict)
		if verdict.Allowed {
			if verdict.HasAnomalies() {
				c.Set(common.AnomalyDetectedHeader, anomalyTypes(verdict.Anomalies))
			}
			return c.Next()
		}

		m.logger.WithFields(logrus.Fields{
			"address":     snapshot.SourceAddress,
			"method":      snapshot.Method,
			"url":         snapshot.URL,
			"reason_code": verdict.Reason,
			"request_id":  RequestID(c),
		}).Info("request denied by intrusion guard")

		SetRetryAfter(c, verdict.RetryAfter)
		return c.Status(IntrusionStatus(verdict.Reason)).JSON(ErrorResponse{
			Error:        verdict.Message,
			ReasonCode:   verdict.Reason,
			Threats:      verdict.Threats,
			Anomalies:    verdict.Anomalies,
			RetryAfterMs: verdict.RetryAfter.Milliseconds(),
		})
	}
}

// Snapshot copies what the guard needs out of the request. fasthttp reuses
// its buffers, so the body is copied.
func Snapshot(c *fiber.Ctx) security.RequestSnapshot {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if prev, ok := headers[k]; ok {
			headers[k] = prev + ", " + string(value)
			return
		}
		headers[k] = string(value)
	})

	query := make(map[string][]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		query[k] = append(query[k], string(value))
	})

	return security.RequestSnapshot{
		SourceAddress: ClientAddress(c),
		UserAgent:     utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		Method:        utils.CopyString(c.Method()),
		URL:           utils.CopyString(c.OriginalURL()),
		Headers:       headers,
		Body:          append([]byte(nil), c.Body()...),
		Query:         query,
	}
}

func IntrusionStatus(reason security.Reason) int {
	switch reason {
	case security.ReasonIPBlocked, security.ReasonAnomalyBlocked:
		return fiber.StatusForbidden
	case security.ReasonThreatDetected:
		return fiber.StatusBadRequest
	case security.ReasonDependencyUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// SetRetryAfter writes whole seconds, rounded up.
func SetRetryAfter(c *fiber.Ctx, d time.Duration) {
	if d <= 0 {
		return
	}
	seconds := int64((d + time.Second - 1) / time.Second)
	c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(seconds, 10))
}

func anomalyTypes(anomalies []security.Anomaly) string {
	types := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		types = append(types, string(a.Type))
	}
	return strings.Join(types, ",")
}
