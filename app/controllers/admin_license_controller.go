package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/lifecycle"
	"github.com/DragosMatei/KeyGate/internal/pkg/normalizer"
)

type createLicenseRequest struct {
	UserID         uint   `json:"user_id" validate:"required"`
	Domain         string `json:"domain" validate:"required,max=255"`
	ProductName    string `json:"product_name" validate:"required,max=150"`
	ProductVersion string `json:"product_version" validate:"max=50"`
	Type           string `json:"type" validate:"required,oneof=trial monthly yearly lifetime"`
	ExpiresAt      string `json:"expires_at" validate:"omitempty"`
	MaxTransfers   *int   `json:"max_transfers" validate:"omitempty,min=0,max=100"`
	Notes          string `json:"notes"`
}

type transferLicenseRequest struct {
	Domain string `json:"domain" validate:"required,max=255"`
}

// HandleCreateLicense issues a new license. The expiry defaults to one
// billing period of the chosen type when not given explicitly.
func HandleCreateLicense(c *fiber.Ctx) error {
	ensureServices()

	var req createLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be JSON.")
	}
	if err := validateRequestValidator.Struct(&req); err != nil {
		return badRequest(c, "user_id, domain, product_name and a valid type are required.")
	}

	normalized, err := normalizer.Normalize(req.Domain)
	if err != nil {
		return badRequest(c, "The submitted domain is not a valid domain name.")
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := userRepo.GetByID(req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unknown_user", "message": "No user with that id exists."})
		}
		return internalError(c, "Failed to resolve license owner.")
	}

	expiresAt, err := resolveExpiry(req.Type, req.ExpiresAt)
	if err != nil {
		return badRequest(c, "expires_at must be an RFC 3339 timestamp in the future, and lifetime licenses take none.")
	}

	license, err := models.NewLicense(req.UserID, normalized, req.Domain, req.ProductName, req.Type, expiresAt)
	if err != nil {
		return badRequest(c, "License fields failed validation.")
	}
	license.ProductVersion = req.ProductVersion
	license.Notes = req.Notes
	if req.MaxTransfers != nil {
		license.MaxTransfers = *req.MaxTransfers
	}

	if err := repository.GetGlobalFactory().GetLicenseRepository().Create(license); err != nil {
		return internalError(c, "Failed to store license.")
	}

	return c.Status(fiber.StatusCreated).JSON(licenseResponse(license))
}

// HandleGetLicense returns one license by id.
func HandleGetLicense(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return badRequest(c, "License id must be a positive integer.")
	}

	license, err := repository.GetGlobalFactory().GetLicenseRepository().GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c)
		}
		return internalError(c, "Failed to load license.")
	}
	return c.JSON(licenseResponse(license))
}

// HandleListLicenses returns a paginated license listing.
func HandleListLicenses(c *fiber.Ctx) error {
	offset, limit := parsePagination(c)
	repo := repository.GetGlobalFactory().GetLicenseRepository()

	licenses, err := repo.List(offset, limit)
	if err != nil {
		return internalError(c, "Failed to list licenses.")
	}
	total, err := repo.Count()
	if err != nil {
		return internalError(c, "Failed to count licenses.")
	}

	items := make([]fiber.Map, 0, len(licenses))
	for i := range licenses {
		items = append(items, licenseResponse(&licenses[i]))
	}
	return c.JSON(fiber.Map{"licenses": items, "total": total})
}

// HandleRenewLicense extends the license by one billing period.
func HandleRenewLicense(c *fiber.Ctx) error {
	return handleTransition(c, func(id uint) (*models.License, error) {
		ensureServices()
		return sharedLifecycle.Renew(id)
	})
}

// HandleSuspendLicense pauses an active license.
func HandleSuspendLicense(c *fiber.Ctx) error {
	return handleTransition(c, func(id uint) (*models.License, error) {
		ensureServices()
		return sharedLifecycle.Suspend(id)
	})
}

// HandleActivateLicense resumes a suspended license.
func HandleActivateLicense(c *fiber.Ctx) error {
	return handleTransition(c, func(id uint) (*models.License, error) {
		ensureServices()
		return sharedLifecycle.Activate(id)
	})
}

// HandleCancelLicense terminates a license for good.
func HandleCancelLicense(c *fiber.Ctx) error {
	return handleTransition(c, func(id uint) (*models.License, error) {
		ensureServices()
		return sharedLifecycle.Cancel(id)
	})
}

// HandleTransferLicense rebinds the license to a new domain.
func HandleTransferLicense(c *fiber.Ctx) error {
	var req transferLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be JSON with a domain field.")
	}
	if err := validateRequestValidator.Struct(&req); err != nil {
		return badRequest(c, "A target domain is required.")
	}

	return handleTransition(c, func(id uint) (*models.License, error) {
		ensureServices()
		return sharedLifecycle.Transfer(id, req.Domain)
	})
}

// HandleListLicenseChecks returns the audit trail of one license, newest first.
func HandleListLicenseChecks(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return badRequest(c, "License id must be a positive integer.")
	}

	factory := repository.GetGlobalFactory()
	if _, err := factory.GetLicenseRepository().GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c)
		}
		return internalError(c, "Failed to load license.")
	}

	offset, limit := parsePagination(c)
	logRepo := factory.GetCheckLogRepository()

	entries, err := logRepo.ListByLicense(id, offset, limit)
	if err != nil {
		return internalError(c, "Failed to list checks.")
	}
	total, err := logRepo.CountByLicense(id)
	if err != nil {
		return internalError(c, "Failed to count checks.")
	}

	items := make([]fiber.Map, 0, len(entries))
	for i := range entries {
		items = append(items, checkLogResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"checks": items, "total": total})
}

func handleTransition(c *fiber.Ctx, op func(id uint) (*models.License, error)) error {
	id, ok := parseIDParam(c)
	if !ok {
		return badRequest(c, "License id must be a positive integer.")
	}

	license, err := op(id)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrNotFound):
			return notFound(c)
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_transition", "message": "The operation is not allowed from the license's current status."})
		case errors.Is(err, lifecycle.ErrTransferLimitExceeded):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "transfer_limit_exceeded", "message": "This license has used up its domain transfers."})
		case errors.Is(err, lifecycle.ErrInvalidDomain):
			return badRequest(c, "The target domain is not a valid domain name.")
		default:
			return internalError(c, "License operation failed.")
		}
	}
	return c.JSON(licenseResponse(license))
}

// resolveExpiry picks the expiry for a fresh license: an explicit timestamp
// wins, otherwise one billing period from now. Lifetime licenses never carry
// an expiry, so an explicit timestamp is rejected for them.
func resolveExpiry(licenseType, explicit string) (*time.Time, error) {
	if explicit != "" {
		if licenseType == models.TYPE_LIFETIME {
			return nil, errors.New("lifetime licenses take no expiry")
		}
		t, err := time.Parse(time.RFC3339, explicit)
		if err != nil {
			return nil, err
		}
		if !t.After(time.Now()) {
			return nil, errors.New("expiry must be in the future")
		}
		return &t, nil
	}
	if licenseType == models.TYPE_LIFETIME {
		return nil, nil
	}
	l := models.License{Type: licenseType}
	return l.NextExpiry(time.Now()), nil
}

func checkLogResponse(entry *models.LicenseCheckLog) fiber.Map {
	var detail interface{}
	if entry.ResponseData != "" {
		if err := json.Unmarshal([]byte(entry.ResponseData), &detail); err != nil {
			detail = entry.ResponseData
		}
	}
	return fiber.Map{
		"id":         entry.ID,
		"license_id": entry.LicenseID,
		"domain":     entry.Domain,
		"is_valid":   entry.IsValid,
		"check_type": entry.CheckType,
		"ip_address": entry.IPAddress,
		"user_agent": entry.UserAgent,
		"response":   detail,
		"checked_at": entry.CheckedAt.UTC().Format(time.RFC3339),
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "License not found"})
}

func internalError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": message})
}
