package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/app/protection"
	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	"github.com/NeuralTrust/TrustGuard/pkg/common"
	"github.com/NeuralTrust/TrustGuard/pkg/config"
	"github.com/NeuralTrust/TrustGuard/pkg/domain/security"
	handlers "github.com/NeuralTrust/TrustGuard/pkg/handlers/http"
	"github.com/NeuralTrust/TrustGuard/pkg/infra/audit"
	"github.com/NeuralTrust/TrustGuard/pkg/version"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

var fixedID = uuid.MustParse("5f0c3a9e-4d1b-4a57-9a52-0d6b1c1f2e10")

func newApp(t *testing.T) (*fiber.App, *protection.Protection) {
	c := &clock{now: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	cfg := config.Default()
	cfg.Store.Type = config.StoreMemory
	cfg.ReportLoop.Windows = []config.WindowConfig{
		{Name: "minute", Span: time.Minute, Limit: 3},
		{Name: "hour", Span: time.Hour, Limit: 50},
		{Name: "day", Span: 24 * time.Hour, Limit: 200},
	}
	logger, _ := test.NewNullLogger()
	p, err := protection.New(&cfg, cache.NewMemoryStore(c.Now), audit.NewRecorder(), logger,
		&protection.Opts{TimeProvider: c.Now})
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/api/v1/reports/check",
		handlers.NewCheckReportHandler(logger, p.ReportLoop, func() uuid.UUID { return fixedID }).Handle)
	app.Post("/api/v1/intrusion/logins", handlers.NewRecordLoginHandler(logger, p.Intrusion).Handle)
	app.Get("/api/v1/admin/:namespace/statistics", handlers.NewGetStatisticsHandler(logger, p).Handle)
	app.Get("/api/v1/admin/:namespace/identities/:id", handlers.NewGetIdentityHandler(logger, p).Handle)
	app.Post("/api/v1/admin/:namespace/identities/:id/block", handlers.NewBlockIdentityHandler(logger, p).Handle)
	app.Delete("/api/v1/admin/:namespace/identities/:id/block", handlers.NewUnblockIdentityHandler(logger, p).Handle)
	app.Get("/version", handlers.NewGetVersionHandler().Handle)
	return app, p
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}, string) {
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out, resp.Header.Get("Retry-After")
}

func reportBody(identity string, i int) map[string]interface{} {
	return map[string]interface{}{
		"identity_id": identity,
		"payload": map[string]string{
			"title":       "title " + string(rune('a'+i)),
			"description": "description " + string(rune('a'+i)),
			"category":    "category " + string(rune('a'+i)),
		},
	}
}

func TestCheckReportHandler_Allowed(t *testing.T) {
	app, _ := newApp(t)

	status, body, _ := do(t, app, fiber.MethodPost, "/api/v1/reports/check", reportBody("u1", 0), nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, fixedID.String(), body["correlation_id"])
}

func TestCheckReportHandler_CorrelationFromHeader(t *testing.T) {
	app, _ := newApp(t)

	_, body, _ := do(t, app, fiber.MethodPost, "/api/v1/reports/check", reportBody("u1", 0),
		map[string]string{common.CorrelationIDHeader: "corr-7"})
	assert.Equal(t, "corr-7", body["correlation_id"])

	payload := reportBody("u2", 0)
	payload["correlation_id"] = "from-body"
	_, body, _ = do(t, app, fiber.MethodPost, "/api/v1/reports/check", payload,
		map[string]string{common.CorrelationIDHeader: "corr-7"})
	assert.Equal(t, "from-body", body["correlation_id"])
}

func TestCheckReportHandler_BlockedReturns429(t *testing.T) {
	app, p := newApp(t)

	for i := 0; i < 3; i++ {
		status, _, _ := do(t, app, fiber.MethodPost, "/api/v1/reports/check", reportBody("u1", i), nil)
		require.Equal(t, fiber.StatusOK, status)
	}
	status, body, retryAfter := do(t, app, fiber.MethodPost, "/api/v1/reports/check", reportBody("u1", 3), nil)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, string(security.ReasonRateLimitMinute), body["reason"])
	assert.Positive(t, body["retry_after_ms"])
	assert.NotEmpty(t, retryAfter)

	admin, ok := p.Admin(security.NamespaceUser)
	require.True(t, ok)
	assert.True(t, admin.IdentityStatus("u1").IsBlocked)
}

func TestCheckReportHandler_BadInput(t *testing.T) {
	app, _ := newApp(t)

	status, body, _ := do(t, app, fiber.MethodPost, "/api/v1/reports/check", "{not json", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, handlers.ErrInvalidJsonPayload, body["error"])

	status, _, _ = do(t, app, fiber.MethodPost, "/api/v1/reports/check", reportBody(" ", 0), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body, _ = do(t, app, fiber.MethodPost, "/api/v1/reports/check",
		map[string]interface{}{"identity_id": "u1", "payload": map[string]string{}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(security.ReasonProcessingError), body["reason"])
}

func TestDecisionStatus(t *testing.T) {
	tests := []struct {
		reason security.Reason
		want   int
	}{
		{security.ReasonRateLimitHour, fiber.StatusTooManyRequests},
		{security.ReasonRapidRequests, fiber.StatusTooManyRequests},
		{security.ReasonDuplicateRequest, fiber.StatusTooManyRequests},
		{security.ReasonIdentityBlocked, fiber.StatusTooManyRequests},
		{security.ReasonProcessingError, fiber.StatusBadRequest},
		{security.ReasonDependencyUnavailable, fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.want, handlers.DecisionStatus(security.Decision{Reason: tt.reason}))
		})
	}
	assert.Equal(t, fiber.StatusOK, handlers.DecisionStatus(security.Allow()))
}

func TestAdminHandlers_BlockStatusUnblock(t *testing.T) {
	app, _ := newApp(t)

	status, body, _ := do(t, app, fiber.MethodPost, "/api/v1/admin/address/identities/10.0.0.7/block",
		map[string]string{"duration": "2h", "reason": "abuse report"}, nil)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "10.0.0.7", body["identity"])

	status, body, _ = do(t, app, fiber.MethodGet, "/api/v1/admin/address/identities/10.0.0.7", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["isBlocked"])
	assert.Equal(t, float64(2*time.Hour/time.Millisecond), body["retryAfterMs"])

	status, body, _ = do(t, app, fiber.MethodGet, "/api/v1/admin/address/statistics", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["blockedCount"])

	// The user namespace is separate.
	_, body, _ = do(t, app, fiber.MethodGet, "/api/v1/admin/user/statistics", nil, nil)
	assert.Equal(t, float64(0), body["blockedCount"])

	status, body, _ = do(t, app, fiber.MethodDelete, "/api/v1/admin/address/identities/10.0.0.7/block", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["was_blocked"])

	_, body, _ = do(t, app, fiber.MethodDelete, "/api/v1/admin/address/identities/10.0.0.7/block", nil, nil)
	assert.Equal(t, false, body["was_blocked"])
}

func TestAdminHandlers_Validation(t *testing.T) {
	app, _ := newApp(t)

	status, _, _ := do(t, app, fiber.MethodGet, "/api/v1/admin/tenant/statistics", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _, _ = do(t, app, fiber.MethodPost, "/api/v1/admin/user/identities/u1/block",
		map[string]string{"duration": "forever"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _, _ = do(t, app, fiber.MethodPost, "/api/v1/admin/user/identities/u1/block", "[", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRecordLoginHandler(t *testing.T) {
	app, p := newApp(t)

	for i := 0; i < 4; i++ {
		status, _, _ := do(t, app, fiber.MethodPost, "/api/v1/intrusion/logins",
			map[string]interface{}{"address": "192.0.2.9", "success": false}, nil)
		require.Equal(t, fiber.StatusAccepted, status)
	}
	admin, _ := p.Admin(security.NamespaceAddress)
	counters := admin.IdentityStatus("192.0.2.9").Counters
	assert.Equal(t, 4, counters["failed_logins"])
	assert.Equal(t, 4, counters["login_attempts"])

	status, _, _ := do(t, app, fiber.MethodPost, "/api/v1/intrusion/logins",
		map[string]interface{}{"address": "not-an-ip", "success": true}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _, _ = do(t, app, fiber.MethodPost, "/api/v1/intrusion/logins",
		map[string]interface{}{"address": "192.0.2.9"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetVersionHandler(t *testing.T) {
	app, _ := newApp(t)

	status, body, _ := do(t, app, fiber.MethodGet, "/version", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, version.AppName, body["app_name"])
	assert.Equal(t, version.Version, body["version"])
}

type pingerMock struct {
	mock.Mock
}

func (m *pingerMock) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestHealthHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "store reachable", want: fiber.StatusOK},
		{name: "store down", err: errors.New("connection refused"), want: fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinger := new(pingerMock)
			pinger.On("Ping", mock.Anything).Return(tt.err).Once()

			app := fiber.New()
			app.Get("/health", handlers.NewHealthHandler(logger, pinger, time.Second).Handle)
			status, _, _ := do(t, app, fiber.MethodGet, "/health", nil, nil)
			assert.Equal(t, tt.want, status)
			pinger.AssertExpectations(t)
		})
	}

	app := fiber.New()
	app.Get("/health", handlers.NewHealthHandler(logger, nil, 0).Handle)
	status, body, _ := do(t, app, fiber.MethodGet, "/health", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
