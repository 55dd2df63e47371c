package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/repository"
	"github.com/meinhoongagan/availability-engine/utils"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var verr *availability.ValidationError
	var rejection *availability.RejectionError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest
	case errors.Is(err, booking.ErrNotParty), errors.Is(err, booking.ErrNotParticipant):
		return fiber.StatusForbidden
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, repository.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &rejection),
		errors.Is(err, booking.ErrRemoteRejected),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrInsufficientNotice),
		errors.Is(err, booking.ErrAlreadyRated),
		errors.Is(err, booking.ErrStaleUpdate),
		errors.Is(err, repository.ErrEmailTaken):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a utils.ErrorResponse. Internal errors are
// logged and their text is not echoed to the client.
func (h *Handlers) respondError(c *fiber.Ctx, message string, err error) error {
	status := statusFor(err)
	body := utils.ErrorResponse{Message: message, Error: err.Error()}

	var verr *availability.ValidationError
	var rejection *availability.RejectionError
	switch {
	case errors.As(err, &verr):
		body.Fields = verr.FieldErrors
	case errors.As(err, &rejection):
		body.Reason = string(rejection.Reason)
		body.Error = rejection.Message
	case errors.Is(err, booking.ErrRemoteRejected):
		body.Error = booking.ErrRemoteRejected.Error()
	case status == fiber.StatusInternalServerError:
		h.logger.Error(message, "method", c.Method(), "path", c.Path(), "error", err)
		body.Error = "internal error"
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
		Message: message,
		Error:   err.Error(),
	})
}
