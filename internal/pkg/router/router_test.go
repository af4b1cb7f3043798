package router

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/app/controllers"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/ReportFox/internal/pkg/payment"
	"github.com/ManuelReschke/ReportFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
)

func testHandlers(apiMax int) Handlers {
	return Handlers{
		Auth:           controllers.NewAuthController(nil),
		Client:         controllers.NewClientController(nil, nil, nil),
		Viewer:         controllers.NewViewerController(nil, nil, nil, nil),
		Callbacks:      controllers.NewCallbackController(nil, time.Second),
		Admin:          controllers.NewAdminController(nil, nil),
		Sessions:       session.NewManager("router-test-secret", time.Hour, time.Hour, session.NewMemoryRevocations()),
		Limiter:        ratelimit.New(ratelimit.NewMemoryBackend()),
		APIRateMax:     apiMax,
		MetricsUser:    "prom",
		MetricsPass:    "scrape",
		AllowedOrigins: "https://shop.example.com",
	}
}

func newTestApp(apiMax int) *fiber.App {
	app := fiber.New()
	InstallRouter(app, testHandlers(apiMax))
	return app
}

func postGarbage(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRegisterRuleLimitsPerHour(t *testing.T) {
	app := newTestApp(1000)

	for i := 0; i < ratelimit.RuleRegister.Limit; i++ {
		assert.Equal(t, fiber.StatusBadRequest, postGarbage(t, app, "/api/auth/register"), "attempt %d", i+1)
	}
	assert.Equal(t, fiber.StatusTooManyRequests, postGarbage(t, app, "/api/auth/register"))

	// other rules keep their own counters
	assert.Equal(t, fiber.StatusBadRequest, postGarbage(t, app, "/api/auth/login"))
}

func TestCoarseAPILimiter(t *testing.T) {
	app := newTestApp(2)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestGatewayCallbacksBypassAPILimiter(t *testing.T) {
	payments := payment.NewServiceFromDB(dbtest.Open(t), payment.Gateways{}, nil, nil, payment.Options{})
	h := testHandlers(1)
	h.Callbacks = controllers.NewCallbackController(payments, time.Second)
	app := fiber.New()
	InstallRouter(app, h)

	for i := 0; i < 5; i++ {
		for _, path := range []string{"/api/client/mpesa/callback", "/api/client/paystack/webhook"} {
			req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode, "%s attempt %d", path, i+1)
		}
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/client/paystack/callback", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode, "other routes keep the limit")
}

func TestGuardsAndSecurityHeaders(t *testing.T) {
	app := newTestApp(1000)

	for _, path := range []string{"/api/client/orders", "/api/client/reports/1/viewer", "/api/admin/revenue", "/api/auth/profile"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "nosniff", resp.Header.Get(fiber.HeaderXContentTypeOptions), path)
		assert.Equal(t, "DENY", resp.Header.Get(fiber.HeaderXFrameOptions), path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(1000)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prom", "scrape")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "reportfox_http_requests_total")
}

func TestCORSPreflightForFrontend(t *testing.T) {
	app := newTestApp(1000)

	req := httptest.NewRequest(fiber.MethodOptions, "/api/client/orders", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://shop.example.com")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example.com", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(fiber.MethodOptions, "/api/client/orders", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://evil.example.com")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}
