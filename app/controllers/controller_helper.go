package controllers

import (
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/jobqueue"
	"github.com/DragosMatei/KeyGate/internal/pkg/lifecycle"
	"github.com/DragosMatei/KeyGate/internal/pkg/ratelimit"
	"github.com/DragosMatei/KeyGate/internal/pkg/validation"
)

var validateRequestValidator = validator.New()

var (
	servicesOnce    sync.Once
	sharedEngine    *validation.Engine
	sharedLifecycle *lifecycle.Service
	sharedLimiter   *ratelimit.Limiter
	sharedRecorder  validation.Recorder
)

func ensureServices() {
	servicesOnce.Do(func() {
		licenseRepo := repository.GetGlobalFactory().GetLicenseRepository()
		sharedRecorder = jobqueue.NewCheckLogSink(jobqueue.GetManager().GetQueue())
		sharedEngine = validation.NewEngine(validation.DefaultConfig(), licenseRepo, sharedRecorder)
		sharedLifecycle = lifecycle.NewService(licenseRepo)
		sharedLimiter = ratelimit.NewLimiter(ratelimit.NewRedisStore(), ratelimit.DefaultConfig())
	})
}

// SharedLimiter exposes the process-wide rate limiter so the router can hand
// the same instance to the gate middleware.
func SharedLimiter() *ratelimit.Limiter {
	ensureServices()
	return sharedLimiter
}

// SharedRecorder exposes the audit sink used for both verdicts and rejected
// requests.
func SharedRecorder() validation.Recorder {
	ensureServices()
	return sharedRecorder
}


func parseIDParam(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// parsePagination reads page/page_size query params with sane bounds.
func parsePagination(c *fiber.Ctx) (offset, limit int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.Query("page_size", "25"))
	if size < 1 {
		size = 25
	}
	if size > 100 {
		size = 100
	}
	return (page - 1) * size, size
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func licenseResponse(l *models.License) fiber.Map {
	return fiber.Map{
		"id":              l.ID,
		"license_key":     l.LicenseKey,
		"user_id":         l.UserID,
		"domain":          l.Domain,
		"raw_domain":      l.RawDomain,
		"product_name":    l.ProductName,
		"product_version": l.ProductVersion,
		"type":            l.Type,
		"status":          l.Status,
		"issued_at":       l.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at":      formatTimePtr(l.ExpiresAt),
		"check_count":     l.CheckCount,
		"last_checked_at": formatTimePtr(l.LastCheckedAt),
		"last_ip":         l.LastIP,
		"transfer_count":  l.TransferCount,
		"max_transfers":   l.MaxTransfers,
		"notes":           l.Notes,
		"created_at":      l.CreatedAt.UTC().Format(time.RFC3339),
	}
}
