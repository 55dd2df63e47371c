package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/controllers"
)

// Setup registers every REST route on app.
func Setup(app *fiber.App, h *controllers.Handlers, secret string) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("availability engine")
	})
	SetupAuthRoutes(app, h, secret)
	SetupAvailabilityRoutes(app, h, secret)
	SetupAppointmentRoutes(app, h, secret)
}
