package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/jwt"
	"github.com/NeuralTrust/TrustGuard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminApp(manager jwt.Manager) *fiber.App {
	logger, _ := test.NewNullLogger()
	app := fiber.New()
	app.Use(middleware.NewAdminAuthMiddleware(logger, manager).Middleware())
	app.Get("/admin", func(c *fiber.Ctx) error {
		subject, _ := c.Locals(common.AdminSubjectKey).(string)
		return c.SendString(subject)
	})
	return app
}

func TestAdminAuthMiddleware(t *testing.T) {
	manager := jwt.NewJwtManager("secret", nil)
	valid, err := manager.CreateToken("ops", time.Hour)
	require.NoError(t, err)
	unscoped, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, &jwt.Claims{}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"empty token", "Bearer ", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
		{"no admin scope", "Bearer " + unscoped, fiber.StatusForbidden},
		{"valid", "Bearer " + valid, fiber.StatusOK},
	}
	app := newAdminApp(manager)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPanicRecoverMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	app := fiber.New()
	app.Use(middleware.NewRequestIDMiddleware(func() uuid.UUID {
		return uuid.MustParse("00000000-0000-0000-0000-000000000001")
	}).Middleware())
	app.Use(middleware.NewPanicRecoverMiddleware(logger).Middleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", resp.Header.Get(common.RequestIDHeader))
	body := decode(t, resp.Body)
	assert.Equal(t, "processing_error", string(body.ReasonCode))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", hook.LastEntry().Data["request_id"])
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewRequestIDMiddleware(nil).Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.RequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(common.RequestIDHeader, "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(common.RequestIDHeader))
}
