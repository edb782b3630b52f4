package requestip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, configure func(req *http.Request)) string {
	t.Helper()

	var got string
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = FromCtx(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	configure(req)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	return got
}

func TestFromCtx(t *testing.T) {
	ip := resolve(t, func(req *http.Request) {
		req.Header.Set("CF-Connecting-IP", "203.0.113.7")
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
	})
	assert.Equal(t, "203.0.113.7", ip)

	ip = resolve(t, func(req *http.Request) {
		req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	})
	assert.Equal(t, "198.51.100.1", ip)

	ip = resolve(t, func(req *http.Request) {})
	assert.NotEmpty(t, ip)
}
