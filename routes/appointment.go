package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/controllers"
	"github.com/meinhoongagan/availability-engine/middleware"
)

// SetupAppointmentRoutes configures all appointment related routes
func SetupAppointmentRoutes(app *fiber.App, h *controllers.Handlers, secret string) {
	appointment := app.Group("/appointments", middleware.Protected(secret))
	appointment.Get("/", h.GetAppointments)
	appointment.Get("/:id", h.GetAppointment)
	appointment.Post("/", h.CreateAppointment)
	appointment.Patch("/:id", h.UpdateAppointment)
	// Some clients cannot send PATCH.
	appointment.Post("/:id", h.UpdateAppointment)
	appointment.Delete("/:id", h.DeleteAppointment)
	appointment.Post("/:id/rating", h.RateAppointment)
}
