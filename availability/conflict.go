package availability

import (
	"fmt"
	"time"

	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// Reason identifies why a candidate slot was rejected.
type Reason string

const (
	ReasonOwnerAway Reason = "owner_away"
	ReasonPast      Reason = "past"
	ReasonLeadTime  Reason = "lead_time"
	ReasonCapacity  Reason = "capacity"
	ReasonBuffer    Reason = "buffer"
	ReasonTimeClash Reason = "time_clash"
	ReasonDuplicate Reason = "duplicate"
)

// Calendar is one party's view for an admission check: who they are, the
// profile that governs their daily capacity and the bookings they hold.
type Calendar struct {
	UserID string
	// Profile overrides the owner's profile for this calendar's capacity.
	Profile  *models.AvailabilityProfile
	Bookings []models.Appointment
}

// Request is a candidate booking of Owner's time by Requester.
type Request struct {
	Start     time.Time
	Owner     Calendar
	Requester Calendar
	// Profile is the owner's availability profile.
	Profile models.AvailabilityProfile
	Now     time.Time
	// IgnoreID excludes an appointment from the check, used when rescheduling it.
	IgnoreID string
}

// Decision is the outcome of Admit.
type Decision struct {
	Admitted bool
	Reason   Reason
	Message  string
}

// Err returns nil for an admitted decision and a *RejectionError otherwise.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &RejectionError{Reason: d.Reason, Message: d.Message}
}

func admit() Decision {
	return Decision{Admitted: true}
}

func reject(reason Reason, format string, args ...interface{}) Decision {
	return Decision{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Admit decides whether req may be booked. Rules run in a fixed order and the
// first failing rule supplies the reason:
//
//  1. the owner is away
//  2. the slot is in the past or inside the owner's minimum lead time
//  3. either calendar already holds its daily capacity on that date
//  4. another booking on either calendar starts within the buffer, or at the
//     exact same time
//  5. the same pair already has a booking at that exact time
//
// Admit is advisory: the store re-runs it when committing.
func Admit(req Request) Decision {
	p := req.Profile
	if p.Status() == models.StatusAway {
		return reject(ReasonOwnerAway, "%s is away and not taking bookings", displayID(req.Owner.UserID))
	}

	if !req.Start.After(req.Now) {
		return reject(ReasonPast, "the selected time has already passed")
	}
	lead := time.Duration(p.MinLeadTime) * time.Hour
	if req.Start.Sub(req.Now) < lead {
		return reject(ReasonLeadTime, "bookings need at least %d hour(s) notice", p.MinLeadTime)
	}

	day := timegrid.StartOfDay(req.Start)
	for _, cal := range req.calendars() {
		profile := p
		if cal.Profile != nil {
			profile = *cal.Profile
		}
		limit := EffectiveMax(profile)
		if count := countOnDay(cal.Bookings, day, req.IgnoreID); count >= limit {
			return reject(ReasonCapacity, "%s has no capacity left on %s (%d of %d booked)",
				displayID(cal.UserID), timegrid.FormatYMD(day), count, limit)
		}
	}

	for _, cal := range req.calendars() {
		for _, b := range cal.Bookings {
			if !blocks(b, req.IgnoreID) {
				continue
			}
			gap := timegrid.MinutesApart(b.StartTime, req.Start)
			if gap < p.Buffer {
				return reject(ReasonBuffer, "%s has a booking at %s, only %d minute(s) away (buffer is %d)",
					displayID(cal.UserID), timegrid.ClockOf(b.StartTime.In(req.Start.Location())), gap, p.Buffer)
			}
			if b.StartTime.Equal(req.Start) && !b.SamePair(req.Owner.UserID, req.Requester.UserID) {
				return reject(ReasonTimeClash, "%s is already booked at %s",
					displayID(cal.UserID), timegrid.ClockOf(req.Start))
			}
		}
	}

	for _, cal := range req.calendars() {
		for _, b := range cal.Bookings {
			if blocks(b, req.IgnoreID) && b.StartTime.Equal(req.Start) &&
				b.SamePair(req.Owner.UserID, req.Requester.UserID) {
				return reject(ReasonDuplicate, "an appointment between you already exists at %s on %s",
					timegrid.ClockOf(req.Start), timegrid.FormatYMD(day))
			}
		}
	}

	return admit()
}

// calendars yields the owner and, when distinct, the requester.
func (r Request) calendars() []Calendar {
	if r.Requester.UserID == "" || r.Requester.UserID == r.Owner.UserID {
		return []Calendar{r.Owner}
	}
	return []Calendar{r.Owner, r.Requester}
}

func blocks(b models.Appointment, ignoreID string) bool {
	return b.Status.Active() && (ignoreID == "" || b.ID != ignoreID)
}

func countOnDay(bookings []models.Appointment, day time.Time, ignoreID string) int {
	count := 0
	for _, b := range bookings {
		if blocks(b, ignoreID) && timegrid.SameDay(day, b.StartTime) {
			count++
		}
	}
	return count
}

func displayID(userID string) string {
	if userID == "" {
		return "this calendar"
	}
	return "user " + userID
}
