package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/DragosMatei/KeyGate/app/controllers"
	"github.com/DragosMatei/KeyGate/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "KeyGate API",
		})
	})

	v1 := api.Group("/v1")

	// Public validation endpoint, gated by the abuse limiter.
	v1.Post("/license/validate",
		middleware.RateLimitMiddleware(controllers.SharedLimiter(), controllers.SharedRecorder()),
		controllers.HandleValidateLicense)

	// Administrative lifecycle and audit endpoints.
	admin := v1.Group("/admin", middleware.APIKeyAuthMiddleware())
	admin.Get("/account", controllers.HandleGetAccount)
	admin.Post("/users", controllers.HandleCreateUser)
	admin.Delete("/users/:id", controllers.HandleDeleteUser)
	admin.Get("/queue", controllers.HandleQueueStats)

	licenses := admin.Group("/licenses")
	licenses.Post("/", controllers.HandleCreateLicense)
	licenses.Get("/", controllers.HandleListLicenses)
	licenses.Get("/:id", controllers.HandleGetLicense)
	licenses.Post("/:id/renew", controllers.HandleRenewLicense)
	licenses.Post("/:id/suspend", controllers.HandleSuspendLicense)
	licenses.Post("/:id/activate", controllers.HandleActivateLicense)
	licenses.Post("/:id/cancel", controllers.HandleCancelLicense)
	licenses.Post("/:id/transfer", controllers.HandleTransferLicense)
	licenses.Get("/:id/checks", controllers.HandleListLicenseChecks)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
