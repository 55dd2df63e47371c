package realtime

import (
	"context"
	"log/slog"

	"github.com/meinhoongagan/availability-engine/models"
)

// AppointmentLookup returns an appointment if actorID is one of its parties.
type AppointmentLookup interface {
	Get(ctx context.Context, actorID, id string) (models.Appointment, error)
}

// Relay forwards appointment:joined and appointment:declined from one party
// to the other. The sender is always the authenticated user, whatever the
// payload claims.
type Relay struct {
	hub          *Hub
	appointments AppointmentLookup
	logger       *slog.Logger
}

func NewRelay(hub *Hub, appointments AppointmentLookup, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{hub: hub, appointments: appointments, logger: logger}
}

func (r *Relay) HandleInbound(ctx context.Context, userID string, env Envelope) {
	switch env.Event {
	case EventAppointmentJoined, EventAppointmentDeclined:
	default:
		r.logger.Debug("ignoring client event", "event", env.Event, "user_id", userID)
		return
	}

	var p Participation
	if err := env.Decode(&p); err != nil || p.AppointmentID == "" {
		r.logger.Debug("malformed participation event", "event", env.Event, "user_id", userID)
		return
	}
	p.UserID = userID

	a, err := r.appointments.Get(ctx, userID, p.AppointmentID)
	if err != nil {
		r.logger.Info("participation event refused", "event", env.Event, "user_id", userID,
			"appointment_id", p.AppointmentID, "error", err)
		return
	}

	out, err := NewEnvelope(env.Event, p)
	if err != nil {
		return
	}
	r.hub.SendTo(ctx, out, a.Counterpart(userID))
}
