package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/middleware"
)

// GetAppointments godoc
// @Summary List the caller's appointments
// @Tags appointments
// @Produce json
// @Success 200 {array} models.Appointment
// @Failure 500 {object} utils.ErrorResponse
// @Router /appointments [get]
func (h *Handlers) GetAppointments(c *fiber.Ctx) error {
	list, err := h.bookings.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.respondError(c, "Failed to fetch appointments", err)
	}
	return c.JSON(list)
}

// GetAppointment godoc
// @Summary Get an appointment by ID
// @Tags appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} models.Appointment
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /appointments/{id} [get]
func (h *Handlers) GetAppointment(c *fiber.Ctx) error {
	a, err := h.bookings.Get(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.respondError(c, "Appointment not found", err)
	}
	return c.JSON(a)
}

// CreateAppointment godoc
// @Summary Book an appointment with another user
// @Tags appointments
// @Accept json
// @Produce json
// @Param appointment body booking.BookRequest true "Appointment"
// @Success 201 {object} models.Appointment
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /appointments [post]
func (h *Handlers) CreateAppointment(c *fiber.Ctx) error {
	var req booking.BookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Failed to parse request body", err)
	}
	if req.ParticipantID != "" {
		if _, err := h.users.Get(c.UserContext(), req.ParticipantID); err != nil {
			return h.respondError(c, "Participant not found", err)
		}
	}

	a, err := h.bookings.Book(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return h.respondError(c, "Failed to create appointment", err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

// UpdateAppointment godoc
// @Summary Change an appointment's status, slot, details or rating
// @Tags appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param patch body booking.Patch true "Changes"
// @Success 200 {object} models.Appointment
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /appointments/{id} [patch]
func (h *Handlers) UpdateAppointment(c *fiber.Ctx) error {
	var patch booking.Patch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Failed to parse request body", err)
	}

	a, err := h.bookings.Update(c.UserContext(), middleware.UserID(c), c.Params("id"), patch)
	if err != nil {
		return h.respondError(c, "Failed to update appointment", err)
	}
	return c.JSON(a)
}

// DeleteAppointment godoc
// @Summary Delete an appointment
// @Tags appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /appointments/{id} [delete]
func (h *Handlers) DeleteAppointment(c *fiber.Ctx) error {
	if err := h.bookings.Delete(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.respondError(c, "Failed to delete appointment", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type RatingInput struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// RateAppointment godoc
// @Summary Rate a completed appointment
// @Description Each party may rate once.
// @Tags appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param rating body RatingInput true "Rating"
// @Success 200 {object} models.Appointment
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /appointments/{id}/rating [post]
func (h *Handlers) RateAppointment(c *fiber.Ctx) error {
	var input RatingInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Invalid rating data", err)
	}

	a, err := h.bookings.Update(c.UserContext(), middleware.UserID(c), c.Params("id"), booking.Patch{
		Rating:   &input.Rating,
		Feedback: &input.Feedback,
	})
	if err != nil {
		return h.respondError(c, "Failed to rate appointment", err)
	}
	return c.JSON(a)
}
