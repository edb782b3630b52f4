package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractKeyVia(t *testing.T, configure func(req *http.Request)) string {
	t.Helper()

	var got string
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = extractAPIKeyFromHeader(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	configure(req)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	return got
}

func TestExtractAPIKeyFromHeader(t *testing.T) {
	key := extractKeyVia(t, func(req *http.Request) {
		req.Header.Set("X-API-Key", "  kg_secret  ")
	})
	assert.Equal(t, "kg_secret", key)

	key = extractKeyVia(t, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer kg_secret")
	})
	assert.Equal(t, "kg_secret", key)

	key = extractKeyVia(t, func(req *http.Request) {
		req.Header.Set("Authorization", "bearer kg_secret")
	})
	assert.Equal(t, "kg_secret", key)

	key = extractKeyVia(t, func(req *http.Request) {
		req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	})
	assert.Equal(t, "", key)

	key = extractKeyVia(t, func(req *http.Request) {})
	assert.Equal(t, "", key)

	// X-API-Key wins over Authorization when both are set.
	key = extractKeyVia(t, func(req *http.Request) {
		req.Header.Set("X-API-Key", "kg_primary")
		req.Header.Set("Authorization", "Bearer kg_secondary")
	})
	assert.Equal(t, "kg_primary", key)
}
