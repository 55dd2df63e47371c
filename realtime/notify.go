package realtime

import (
	"context"

	"github.com/meinhoongagan/availability-engine/models"
)

// AvailabilityChanged remembers the new status for future snapshots and tells
// every connected user.
func (h *Hub) AvailabilityChanged(ctx context.Context, p models.AvailabilityProfile) {
	h.setStatus(p.UserID, p.Status())
	h.broadcastEvent(ctx, EventAvailabilityChanged, AvailabilityChanged{
		UserID:             p.UserID,
		AvailabilityStatus: p.Status(),
		Availability:       p,
	})
}

func (h *Hub) AppointmentCreated(ctx context.Context, a models.Appointment) {
	h.toParties(ctx, EventAppointmentCreated, AppointmentEvent{Appointment: a})
}

func (h *Hub) AppointmentUpdated(ctx context.Context, a models.Appointment) {
	h.toParties(ctx, EventAppointmentUpdated, AppointmentEvent{Appointment: a})
}

func (h *Hub) AppointmentStatusChanged(ctx context.Context, a models.Appointment, from models.AppointmentStatus) {
	h.toParties(ctx, EventAppointmentStatusChanged, AppointmentEvent{Appointment: a, PreviousStatus: from})
}

func (h *Hub) AppointmentDeleted(ctx context.Context, a models.Appointment) {
	h.toParties(ctx, EventAppointmentDeleted, AppointmentEvent{Appointment: a})
}

func (h *Hub) AppointmentReminder(ctx context.Context, a models.Appointment) {
	h.toParties(ctx, EventAppointmentReminder, AppointmentEvent{Appointment: a})
}

func (h *Hub) AppointmentStarted(ctx context.Context, a models.Appointment) {
	h.toParties(ctx, EventAppointmentStarted, AppointmentEvent{Appointment: a})
}

func (h *Hub) toParties(ctx context.Context, event string, payload AppointmentEvent) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}
	h.SendTo(ctx, env, payload.Appointment.CreatorID, payload.Appointment.ParticipantID)
}

func (h *Hub) broadcastEvent(ctx context.Context, event string, payload interface{}) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}
	h.Broadcast(ctx, env)
}
