package middleware

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/internal/pkg/ratelimit"
	"github.com/DragosMatei/KeyGate/internal/pkg/requestip"
	"github.com/DragosMatei/KeyGate/internal/pkg/validation"
)

type limitedRequest struct {
	LicenseKey string `json:"license_key"`
	Domain     string `json:"domain"`
}

// RateLimitMiddleware gates validation traffic before the engine runs. The
// hard IP block is checked first on every request, the window counters
// after it. Rejections share the validation response shape and are recorded
// in the audit log like any other outcome.
func RateLimitMiddleware(limiter *ratelimit.Limiter, recorder validation.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req limitedRequest
		// Body may legitimately be absent on reads; the IP windows still apply.
		_ = c.BodyParser(&req)

		// Same derivation the controller registers failures under, so the
		// block flag and the windows are consulted for the address they
		// were armed on.
		ip := requestip.FromCtx(c)

		decision, err := limiter.Check(ip, req.LicenseKey)
		if err != nil {
			// A cache outage degrades abuse protection, not validation.
			log.Printf("rate limit check degraded: %v", err)
			return c.Next()
		}
		if decision.Allowed {
			return c.Next()
		}

		retryAfter := int(decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}

		if recorder != nil {
			recorder.Record(validation.Result{
				Status:    validation.Status(decision.Code),
				Message:   decision.Message,
				RawDomain: req.Domain,
				CheckedAt: time.Now(),
			}, validation.RequestContext{
				IP:        ip,
				UserAgent: c.Get(fiber.HeaderUserAgent),
				CheckType: models.CHECK_TYPE_API,
			})
		}

		status := fiber.StatusTooManyRequests
		if decision.Code == ratelimit.CodeIPBlocked {
			status = fiber.StatusForbidden
		}

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return c.Status(status).JSON(fiber.Map{
			"valid":       false,
			"code":        decision.Code,
			"message":     decision.Message,
			"retry_after": retryAfter,
		})
	}
}
