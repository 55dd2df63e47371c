package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/controllers"
	"github.com/meinhoongagan/availability-engine/middleware"
)

// SetupAuthRoutes configures all authentication related routes
func SetupAuthRoutes(app *fiber.App, h *controllers.Handlers, secret string) {
	auth := app.Group("/auth")

	// Public routes
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	// Protected routes
	auth.Get("/me", middleware.Protected(secret), h.GetUserProfile)
	auth.Post("/refresh", middleware.Protected(secret), h.RefreshToken)
	auth.Get("/user/:id", middleware.Protected(secret), h.GetUserByID)
}
