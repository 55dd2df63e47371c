package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// AvailabilityStatus is the owner-declared state of a calendar.
type AvailabilityStatus string

const (
	StatusAvailable AvailabilityStatus = "available"
	StatusLimited   AvailabilityStatus = "limited"
	StatusAway      AvailabilityStatus = "away"
)

// Valid reports whether s is one of the three known statuses.
func (s AvailabilityStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusLimited, StatusAway:
		return true
	}
	return false
}

// BreakWindow is a [Start, End) pause inside the daily window, "HH:MM" in 24h.
type BreakWindow struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// DurationBounds stores the allowed custom appointment length in minutes.
type DurationBounds struct {
	Min int `json:"min" validate:"gt=0"`
	Max int `json:"max" validate:"gtefield=Min"`
}

// Value implements the driver.Valuer interface
func (d DurationBounds) Value() (driver.Value, error) {
	jsonData, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(jsonData), nil
}

// Scan implements the sql.Scanner interface
func (d *DurationBounds) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal DurationBounds: unsupported type %T", value)
	}

	return json.Unmarshal(data, d)
}

// Contains reports whether minutes lies inside the inclusive bounds.
func (d DurationBounds) Contains(minutes int) bool {
	return minutes >= d.Min && minutes <= d.Max
}

// AvailabilityProfile is a user's weekly bookable schedule. It is replaced
// wholesale by its owner and read by anyone trying to book that owner.
type AvailabilityProfile struct {
	UserID              string                           `json:"userId" gorm:"primaryKey;type:varchar(64)"`
	Days                datatypes.JSONSlice[int]         `json:"days" validate:"dive,min=0,max=6"`
	Start               string                           `json:"start" validate:"required"`
	End                 string                           `json:"end" validate:"required"`
	SlotDuration        int                              `json:"slotDuration" validate:"gt=0,lte=1440"`
	Buffer              int                              `json:"buffer" validate:"gte=0"`
	MaxPerDay           int                              `json:"maxPerDay" validate:"gte=0"`
	MinPerDay           int                              `json:"minPerDay" validate:"gte=0"`
	BreakTimes          datatypes.JSONSlice[BreakWindow] `json:"breakTimes" validate:"dive"`
	MinLeadTime         int                              `json:"minLeadTime" validate:"gte=0"`
	CancelNotice        int                              `json:"cancelNotice" validate:"gte=0"`
	AppointmentDuration DurationBounds                   `json:"appointmentDuration" gorm:"type:jsonb"`
	AvailabilityStatus  AvailabilityStatus               `json:"availabilityStatus" gorm:"type:varchar(16);default:'available'"`
	UpdatedAt           time.Time                        `json:"updatedAt"`
}

// DefaultAvailability is what an owner who never saved settings offers.
func DefaultAvailability(userID string) AvailabilityProfile {
	return AvailabilityProfile{
		UserID:              userID,
		Days:                datatypes.JSONSlice[int]{1, 2, 3, 4, 5},
		Start:               "09:00",
		End:                 "17:00",
		SlotDuration:        30,
		Buffer:              15,
		MaxPerDay:           8,
		MinPerDay:           3,
		BreakTimes:          datatypes.JSONSlice[BreakWindow]{},
		MinLeadTime:         1,
		CancelNotice:        24,
		AppointmentDuration: DurationBounds{Min: 15, Max: 120},
		AvailabilityStatus:  StatusAvailable,
	}
}

// WorksOn reports whether weekday (0=Sunday) is one of the profile's days.
func (p AvailabilityProfile) WorksOn(weekday time.Weekday) bool {
	for _, d := range p.Days {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// Status returns the availability status, treating an unset value as available.
func (p AvailabilityProfile) Status() AvailabilityStatus {
	if p.AvailabilityStatus == "" {
		return StatusAvailable
	}
	return p.AvailabilityStatus
}
