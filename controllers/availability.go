package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/meinhoongagan/availability-engine/middleware"
	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// AvailabilityResponse is the body of every availability read and write.
type AvailabilityResponse struct {
	Availability       models.AvailabilityProfile `json:"availability"`
	AvailabilityStatus models.AvailabilityStatus  `json:"availabilityStatus"`
}

func availabilityResponse(p models.AvailabilityProfile) AvailabilityResponse {
	return AvailabilityResponse{Availability: p, AvailabilityStatus: p.Status()}
}

// GetMyAvailability godoc
// @Summary Get the caller's availability settings
// @Tags availability
// @Produce json
// @Success 200 {object} AvailabilityResponse
// @Router /availability [get]
func (h *Handlers) GetMyAvailability(c *fiber.Ctx) error {
	return h.sendAvailability(c, middleware.UserID(c))
}

// GetAvailability godoc
// @Summary Get a user's availability settings
// @Description Users who never saved settings get the defaults.
// @Tags availability
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} AvailabilityResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /availability/{ownerId} [get]
func (h *Handlers) GetAvailability(c *fiber.Ctx) error {
	return h.sendAvailability(c, c.Params("ownerId"))
}

func (h *Handlers) sendAvailability(c *fiber.Ctx, ownerID string) error {
	profile, err := h.availability.Profile(c.UserContext(), ownerID)
	if err != nil {
		return h.respondError(c, "Failed to fetch availability", err)
	}
	return c.JSON(availabilityResponse(profile))
}

// UpdateAvailability godoc
// @Summary Replace the caller's availability settings
// @Tags availability
// @Accept json
// @Produce json
// @Param availability body models.AvailabilityProfile true "Availability"
// @Success 200 {object} AvailabilityResponse
// @Failure 400 {object} utils.ErrorResponse
// @Router /availability [post]
func (h *Handlers) UpdateAvailability(c *fiber.Ctx) error {
	var profile models.AvailabilityProfile
	if err := c.BodyParser(&profile); err != nil {
		return badRequest(c, "Failed to parse request body", err)
	}
	// Clients may send the read shape back with the profile nested.
	var nested struct {
		Availability *models.AvailabilityProfile `json:"availability"`
	}
	if err := c.BodyParser(&nested); err == nil && nested.Availability != nil {
		status := profile.AvailabilityStatus
		profile = *nested.Availability
		if status != "" {
			profile.AvailabilityStatus = status
		}
	}

	saved, err := h.availability.Save(c.UserContext(), middleware.UserID(c), profile)
	if err != nil {
		return h.respondError(c, "Failed to save availability", err)
	}
	return c.JSON(availabilityResponse(saved))
}

// GetSlots godoc
// @Summary List a user's slots for one day
// @Description Every generated slot is returned; rejected ones carry a reason.
// @Tags availability
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {array} availability.Slot
// @Failure 400 {object} utils.ErrorResponse
// @Router /availability/{ownerId}/slots [get]
func (h *Handlers) GetSlots(c *fiber.Ctx) error {
	loc := h.availability.Location()
	date := timegrid.StartOfDay(h.now().In(loc))
	if raw := c.Query("date"); raw != "" {
		parsed, ok := timegrid.ParseYMD(raw, loc)
		if !ok {
			return badRequest(c, "Invalid date", errors.New("date must be YYYY-MM-DD"))
		}
		date = parsed
	}

	slots, err := h.availability.Slots(c.UserContext(), c.Params("ownerId"), middleware.UserID(c), date)
	if err != nil {
		return h.respondError(c, "Failed to list slots", err)
	}
	return c.JSON(slots)
}
