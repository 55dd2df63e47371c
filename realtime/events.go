// Package realtime carries server-pushed events over websockets: presence of
// connected users, availability changes and appointment lifecycle updates.
package realtime

import (
	"encoding/json"

	"github.com/meinhoongagan/availability-engine/models"
)

// Events pushed by the server.
const (
	EventPresenceInit             = "presence:init"
	EventPresenceUpdate           = "presence:update"
	EventAvailabilityChanged      = "availability:changed"
	EventAppointmentCreated       = "appointment:created"
	EventAppointmentUpdated       = "appointment:updated"
	EventAppointmentDeleted       = "appointment:deleted"
	EventAppointmentStatusChanged = "appointment:statusChanged"
	EventAppointmentReminder      = "appointment:reminder"
	EventAppointmentStarted       = "appointment:started"
)

// Events sent by clients.
const (
	EventAppointmentJoined   = "appointment:joined"
	EventAppointmentDeclined = "appointment:declined"
)

// Envelope is the frame of every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

type PresenceEntry struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// PresenceInit is the full snapshot sent once per connection.
type PresenceInit struct {
	OnlineUsers []PresenceEntry `json:"onlineUsers"`
	// Statuses holds the availability status of every user the server knows.
	Statuses map[string]models.AvailabilityStatus `json:"availabilityStatuses,omitempty"`
}

type AvailabilityChanged struct {
	UserID             string                     `json:"userId"`
	AvailabilityStatus models.AvailabilityStatus  `json:"availabilityStatus"`
	Availability       models.AvailabilityProfile `json:"availability"`
}

// AppointmentEvent is the payload of every appointment:* server event.
type AppointmentEvent struct {
	Appointment    models.Appointment       `json:"appointment"`
	PreviousStatus models.AppointmentStatus `json:"previousStatus,omitempty"`
}

// Participation is sent by a party joining or declining an appointment call.
type Participation struct {
	AppointmentID string `json:"appointmentId"`
	UserID        string `json:"userId"`
}
