package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/usercontext"
)

type createUserRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email,min=5,max=200"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// HandleGetAccount returns the authenticated admin's own account, including
// how many active licenses it owns.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	factory := repository.GetGlobalFactory()
	account, err := factory.GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return internalError(c, "Failed to load user.")
	}

	activeLicenses, err := factory.GetLicenseRepository().CountActiveByUser(account.ID)
	if err != nil {
		return internalError(c, "Failed to count licenses.")
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"role":                 account.Role,
		"status":               account.Status,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"api_key_last_used_at": formatTimePtr(account.APIKeyLastUsedAt),
		"stats": fiber.Map{
			"active_licenses": activeLicenses,
		},
	})
}

// HandleCreateUser registers a license owner. Admin users get a fresh API key
// in the response; the raw key is only visible this once.
func HandleCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be JSON.")
	}
	if err := validateRequestValidator.Struct(&req); err != nil {
		return badRequest(c, "name, email and a password of at least 6 characters are required.")
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return badRequest(c, "User fields failed validation.")
	}

	var rawAPIKey string
	if req.Role == models.ROLE_ADMIN {
		user.Role = models.ROLE_ADMIN
		key, err := user.GenerateAPIKey()
		if err != nil {
			return internalError(c, "Failed to generate API key.")
		}
		rawAPIKey = key
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := userRepo.GetByEmail(user.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken", "message": "A user with that email already exists."})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "Failed to check email.")
	}

	if err := userRepo.Create(user); err != nil {
		return internalError(c, "Failed to store user.")
	}

	response := fiber.Map{
		"id":         user.ID,
		"username":   user.Name,
		"email":      user.Email,
		"role":       user.Role,
		"status":     user.Status,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rawAPIKey != "" {
		response["api_key"] = rawAPIKey
	}
	return c.Status(fiber.StatusCreated).JSON(response)
}

// HandleDeleteUser removes a user. Users still holding active or suspended
// licenses cannot be deleted; their licenses have to be cancelled first.
func HandleDeleteUser(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return badRequest(c, "User id must be a positive integer.")
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := userRepo.GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return internalError(c, "Failed to load user.")
	}

	deletable, err := userRepo.CanDelete(id)
	if err != nil {
		return internalError(c, "Failed to check user licenses.")
	}
	if !deletable {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "user_has_licenses", "message": "Cancel the user's licenses before deleting the account."})
	}

	if err := userRepo.Delete(id); err != nil {
		return internalError(c, "Failed to delete user.")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
