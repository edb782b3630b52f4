package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragosMatei/KeyGate/internal/pkg/ratelimit"
	"github.com/DragosMatei/KeyGate/internal/pkg/validation"
)

type recordedRejection struct {
	result validation.Result
	reqCtx validation.RequestContext
}

type captureRecorder struct {
	records []recordedRejection
}

func (r *captureRecorder) Record(result validation.Result, reqCtx validation.RequestContext) {
	r.records = append(r.records, recordedRejection{result: result, reqCtx: reqCtx})
}

func newGatedApp(limiter *ratelimit.Limiter, recorder validation.Recorder) *fiber.App {
	app := fiber.New()
	app.Post("/validate", RateLimitMiddleware(limiter, recorder), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"valid": true})
	})
	return app
}

func postValidate(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRateLimitMiddleware_AllowsWithinWindow(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultConfig())
	app := newGatedApp(limiter, &captureRecorder{})

	resp := postValidate(t, app, `{"license_key":"LIC-AAAA-BBBB-CCCC-DDDD","domain":"example.com"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitMiddleware_RejectsOverIPWindow(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.IPLimit = 3
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg)
	recorder := &captureRecorder{}
	app := newGatedApp(limiter, recorder)

	for i := 0; i < 3; i++ {
		resp := postValidate(t, app, `{"domain":"example.com"}`)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d should pass", i+1)
	}

	resp := postValidate(t, app, `{"domain":"example.com"}`)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, false, payload["valid"])
	assert.Equal(t, ratelimit.CodeRateLimitExceeded, payload["code"])

	// The rejection itself lands in the audit trail.
	require.Len(t, recorder.records, 1)
	assert.False(t, recorder.records[0].result.Valid)
	assert.Equal(t, validation.Status(ratelimit.CodeRateLimitExceeded), recorder.records[0].result.Status)
	assert.Equal(t, "example.com", recorder.records[0].result.RawDomain)
}

func TestRateLimitMiddleware_RejectsOverKeyWindow(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.KeyLimit = 2
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg)
	app := newGatedApp(limiter, &captureRecorder{})

	const body = `{"license_key":"LIC-AAAA-BBBB-CCCC-DDDD","domain":"example.com"}`
	for i := 0; i < 2; i++ {
		resp := postValidate(t, app, body)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d should pass", i+1)
	}

	resp := postValidate(t, app, body)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, ratelimit.CodeLicenseRateLimitExceeded, payload["code"])
}

func TestRateLimitMiddleware_BlockedIPGetsForbidden(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg)
	app := newGatedApp(limiter, &captureRecorder{})

	// Drive the failure counter past the escalation threshold.
	blocked := false
	for i := 0; i < cfg.FailureThreshold+cfg.FailureReArm; i++ {
		armed, err := limiter.RegisterFailure("0.0.0.0")
		require.NoError(t, err)
		blocked = blocked || armed
	}
	require.True(t, blocked)

	resp := postValidate(t, app, `{"domain":"example.com"}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, ratelimit.CodeIPBlocked, payload["code"])
}

func TestRateLimitMiddleware_ForwardedClientSharesBlockIdentity(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg)
	app := newGatedApp(limiter, &captureRecorder{})

	// Failures are registered under the forwarded client address; the gate
	// must consult the block flag under that same address, not the socket
	// peer's.
	const client = "198.51.100.9"
	for i := 0; i < cfg.FailureThreshold+cfg.FailureReArm; i++ {
		_, err := limiter.RegisterFailure(client)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{"domain":"example.com"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Forwarded-For", client)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, ratelimit.CodeIPBlocked, payload["code"])
}

func TestRateLimitMiddleware_MissingBodyStillCountsIP(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.IPLimit = 1
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg)
	app := newGatedApp(limiter, &captureRecorder{})

	resp := postValidate(t, app, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = postValidate(t, app, "")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimitMiddleware_RetryAfterNeverBelowOneSecond(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.IPLimit = 1
	cfg.IPWindow = 100 * time.Millisecond
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg)
	app := newGatedApp(limiter, &captureRecorder{})

	resp := postValidate(t, app, `{"domain":"example.com"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = postValidate(t, app, `{"domain":"example.com"}`)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
}
