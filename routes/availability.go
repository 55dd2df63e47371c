package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/controllers"
	"github.com/meinhoongagan/availability-engine/middleware"
)

// SetupAvailabilityRoutes configures availability settings and slot routes
func SetupAvailabilityRoutes(app *fiber.App, h *controllers.Handlers, secret string) {
	availability := app.Group("/availability", middleware.Protected(secret))
	availability.Get("/", h.GetMyAvailability)
	availability.Post("/", h.UpdateAvailability)
	availability.Get("/:ownerId", h.GetAvailability)
	availability.Get("/:ownerId/slots", h.GetSlots)
}
