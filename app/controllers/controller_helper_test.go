package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragosMatei/KeyGate/app/models"
)

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2024, 5, 1, 12, 34, 56, 0, time.Local)
	formatted := formatTimePtr(&now)
	assert.IsType(t, "", formatted)

	expected := now.UTC().Format(time.RFC3339)
	assert.Equal(t, expected, formatted)
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	var offset, limit int
	app.Get("/", func(c *fiber.Ctx) error {
		offset, limit = parsePagination(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	cases := []struct {
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"", 0, 25},
		{"?page=3&page_size=10", 20, 10},
		{"?page=0&page_size=0", 0, 25},
		{"?page=-2&page_size=-5", 0, 25},
		{"?page_size=5000", 0, 100},
		{"?page=abc&page_size=xyz", 0, 25},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
		assert.Equal(t, tc.wantOffset, offset, "query %q", tc.query)
		assert.Equal(t, tc.wantLimit, limit, "query %q", tc.query)
	}
}

func TestResolveExpiry(t *testing.T) {
	// Lifetime licenses have no expiry.
	exp, err := resolveExpiry(models.TYPE_LIFETIME, "")
	require.NoError(t, err)
	assert.Nil(t, exp)

	// Period defaults per type.
	exp, err = resolveExpiry(models.TYPE_YEARLY, "")
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.WithinDuration(t, time.Now().AddDate(1, 0, 0), *exp, time.Minute)

	exp, err = resolveExpiry(models.TYPE_MONTHLY, "")
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), *exp, time.Minute)

	exp, err = resolveExpiry(models.TYPE_TRIAL, "")
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, models.TrialPeriodDays), *exp, time.Minute)

	// Explicit future timestamp wins over the type period.
	future := time.Now().AddDate(0, 0, 42).UTC().Truncate(time.Second)
	exp, err = resolveExpiry(models.TYPE_YEARLY, future.Format(time.RFC3339))
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.True(t, exp.Equal(future))

	// Past or malformed timestamps are rejected.
	_, err = resolveExpiry(models.TYPE_YEARLY, "2001-01-01T00:00:00Z")
	assert.Error(t, err)
	_, err = resolveExpiry(models.TYPE_YEARLY, "not-a-timestamp")
	assert.Error(t, err)

	// Lifetime licenses never carry an expiry, explicit or otherwise.
	_, err = resolveExpiry(models.TYPE_LIFETIME, future.Format(time.RFC3339))
	assert.Error(t, err)
}

func TestCheckLogResponse(t *testing.T) {
	licenseID := uint(7)
	entry := &models.LicenseCheckLog{
		ID:           12,
		LicenseID:    &licenseID,
		Domain:       "example.com",
		IsValid:      true,
		CheckType:    models.CHECK_TYPE_API,
		IPAddress:    "203.0.113.7",
		ResponseData: `{"valid":true,"code":"VALID"}`,
		CheckedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	payload := checkLogResponse(entry)
	assert.Equal(t, uint(12), payload["id"])
	assert.Equal(t, &licenseID, payload["license_id"])
	assert.Equal(t, "2026-03-01T10:00:00Z", payload["checked_at"])

	detail, ok := payload["response"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "VALID", detail["code"])

	// Unparseable detail falls back to the raw string.
	entry.ResponseData = "not json"
	payload = checkLogResponse(entry)
	assert.Equal(t, "not json", payload["response"])
}
