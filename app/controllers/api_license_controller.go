package controllers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/internal/pkg/requestip"
	"github.com/DragosMatei/KeyGate/internal/pkg/validation"
)

type validateLicenseRequest struct {
	LicenseKey string `json:"license_key"`
	Domain     string `json:"domain"`
}

// HandleValidateLicense is the public validation endpoint. Every request gets
// a verdict with HTTP 200; only an unreachable store produces a 5xx, and a
// body that is not JSON a 400. Field problems (missing or garbage domain)
// are business verdicts, not 4xx. Every attempt, the 400 included, lands in
// the audit trail exactly once.
func HandleValidateLicense(c *fiber.Ctx) error {
	ensureServices()

	reqCtx := validation.RequestContext{
		IP:        requestip.FromCtx(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		CheckType: models.CHECK_TYPE_API,
	}

	var req validateLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		// A body that is not even JSON is still an attempt someone made;
		// it gets an audit row like every other outcome.
		sharedRecorder.Record(validation.Result{
			Status:    "INVALID_REQUEST",
			Message:   "Request body must be JSON with a domain field.",
			CheckedAt: time.Now(),
		}, reqCtx)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid":   false,
			"code":    "INVALID_REQUEST",
			"message": "Request body must be JSON with a domain field.",
		})
	}

	result, err := sharedEngine.Validate(reqCtx, req.LicenseKey, req.Domain)
	if err != nil {
		if errors.Is(err, validation.ErrStoreUnavailable) {
			log.Printf("license validation unavailable: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"valid":   false,
				"code":    "SERVICE_UNAVAILABLE",
				"message": "License validation is temporarily unavailable. Please retry.",
			})
		}
		log.Printf("license validation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"valid":   false,
			"code":    "INTERNAL_ERROR",
			"message": "License validation failed.",
		})
	}

	if !result.Valid {
		// Failed verdicts feed the abuse escalation; a cache hiccup here must
		// not affect the verdict already produced.
		if _, err := sharedLimiter.RegisterFailure(reqCtx.IP); err != nil {
			log.Printf("failure escalation for %s degraded: %v", reqCtx.IP, err)
		}
	}

	response := fiber.Map{
		"valid":   result.Valid,
		"code":    string(result.Status),
		"message": result.Message,
	}
	if result.DaysRemaining != nil {
		response["days_until_expiration"] = *result.DaysRemaining
	}
	return c.JSON(response)
}
