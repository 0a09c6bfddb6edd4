package middleware

import (
	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

type requestIDMiddleware struct {
	uuidProvider func() uuid.UUID
}

// NewRequestIDMiddleware keeps an incoming X-Request-Id and mints one
// otherwise. The id is echoed on the response.
func NewRequestIDMiddleware(uuidProvider func() uuid.UUID) Middleware {
	if uuidProvider == nil {
		uuidProvider = uuid.New
	}
	return &requestIDMiddleware{uuidProvider: uuidProvider}
}

func (m *requestIDMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := utils.CopyString(c.Get(common.RequestIDHeader))
		if id == "" {
			id = m.uuidProvider().String()
		}
		c.Locals(common.RequestIDKey, id)
		c.Set(common.RequestIDHeader, id)
		return c.Next()
	}
}

func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(common.RequestIDKey).(string)
	return id
}
