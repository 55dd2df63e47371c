package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusDeclined    AppointmentStatus = "declined"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Valid reports whether s is a known lifecycle state.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDeclined, StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

// Active statuses occupy a slot on both parties' calendars.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusRescheduled
}

// Terminal statuses accept no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusDeclined || s == StatusCancelled || s == StatusCompleted
}

// ActiveStatuses lists the statuses that block a calendar slot.
func ActiveStatuses() []AppointmentStatus {
	return []AppointmentStatus{StatusPending, StatusConfirmed, StatusRescheduled}
}

type Appointment struct {
	ID              string                      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatorID       string                      `json:"creatorId" gorm:"type:varchar(64);not null;index"`
	ParticipantID   string                      `json:"participantId" gorm:"type:varchar(64);not null;index"`
	Date            string                      `json:"date" gorm:"type:varchar(10);not null;index"`
	StartTime       time.Time                   `json:"startTime" gorm:"not null;index"`
	EndTime         time.Time                   `json:"endTime" gorm:"not null"`
	Duration        int                         `json:"duration"`
	Title           string                      `json:"title"`
	Description     string                      `json:"description"`
	MeetingType     string                      `json:"meetingType"`
	Status          AppointmentStatus           `json:"status" gorm:"type:varchar(16);not null;index"`
	DeclinedReason  string                      `json:"declinedReason,omitempty"`
	Ratings         datatypes.JSONSlice[Rating] `json:"ratings"`
	RemindedAt      *time.Time                  `json:"remindedAt,omitempty"`
	StartNotifiedAt *time.Time                  `json:"startNotifiedAt,omitempty"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	return nil
}

// HasParty reports whether userID is the creator or the participant.
func (a *Appointment) HasParty(userID string) bool {
	return userID != "" && (a.CreatorID == userID || a.ParticipantID == userID)
}

// Counterpart returns the other party of the appointment.
func (a *Appointment) Counterpart(userID string) string {
	if a.CreatorID == userID {
		return a.ParticipantID
	}
	return a.CreatorID
}

// SamePair reports whether both appointments are between the same two users.
func (a *Appointment) SamePair(userA, userB string) bool {
	return (a.CreatorID == userA && a.ParticipantID == userB) ||
		(a.CreatorID == userB && a.ParticipantID == userA)
}
