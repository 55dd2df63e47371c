package booking

import (
	"strings"
	"time"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// Action names a lifecycle operation.
type Action string

const (
	ActionAccept     Action = "accept"
	ActionDecline    Action = "decline"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
	ActionComplete   Action = "complete"
	ActionRate       Action = "rate"
)

// Machine applies lifecycle transitions to appointments in memory. Persisting
// the result is the caller's job; every method either changes the appointment
// as one step or leaves it untouched and returns an error.
//
//	pending     --accept-->     confirmed
//	pending     --decline-->    declined
//	confirmed   --reschedule--> rescheduled
//	rescheduled --reschedule--> rescheduled
//	pending|confirmed|rescheduled --cancel--> cancelled
//	confirmed|rescheduled --complete--> completed
//	completed   --rate-->       completed
type Machine struct {
	now func() time.Time
}

func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// Now is the machine's clock.
func (m *Machine) Now() time.Time {
	return m.now()
}

func (m *Machine) Accept(a *models.Appointment, actorID string) error {
	if err := requireParticipant(a, actorID); err != nil {
		return err
	}
	if a.Status != models.StatusPending {
		return &TransitionError{From: a.Status, Action: ActionAccept}
	}
	a.Status = models.StatusConfirmed
	return nil
}

// Decline records the participant's refusal. The reason must not be blank.
func (m *Machine) Decline(a *models.Appointment, actorID, reason string) error {
	if err := requireParticipant(a, actorID); err != nil {
		return err
	}
	if a.Status != models.StatusPending {
		return &TransitionError{From: a.Status, Action: ActionDecline}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		verr := &availability.ValidationError{}
		verr.Add("declinedReason", "is required when declining")
		return verr
	}
	a.Status = models.StatusDeclined
	a.DeclinedReason = reason
	return nil
}

// Slot is the new time of a rescheduled appointment.
type Slot struct {
	Start    time.Time
	Duration int
}

// Reschedule moves a confirmed appointment to slot. check must be the
// admission decision for slot with the appointment itself ignored.
func (m *Machine) Reschedule(a *models.Appointment, actorID string, slot Slot, check availability.Decision) error {
	if err := requireParty(a, actorID); err != nil {
		return err
	}
	if a.Status != models.StatusConfirmed && a.Status != models.StatusRescheduled {
		return &TransitionError{From: a.Status, Action: ActionReschedule}
	}
	if err := check.Err(); err != nil {
		return err
	}
	setSlot(a, slot)
	a.Status = models.StatusRescheduled
	a.RemindedAt = nil
	a.StartNotifiedAt = nil
	return nil
}

// Cancel is allowed from any active state as long as at least noticeHours
// remain before the start.
func (m *Machine) Cancel(a *models.Appointment, actorID string, noticeHours int) error {
	if err := requireParty(a, actorID); err != nil {
		return err
	}
	if !a.Status.Active() {
		return &TransitionError{From: a.Status, Action: ActionCancel}
	}
	required := time.Duration(noticeHours) * time.Hour
	if remaining := a.StartTime.Sub(m.now()); remaining < required {
		return &NoticeError{Required: required, Remaining: remaining}
	}
	a.Status = models.StatusCancelled
	return nil
}

// Complete closes a confirmed appointment. An empty actorID is the scheduler
// reporting that the appointment's time has passed; a party may only complete
// an appointment that has already started.
func (m *Machine) Complete(a *models.Appointment, actorID string) error {
	if actorID != "" {
		if err := requireParty(a, actorID); err != nil {
			return err
		}
	}
	if a.Status != models.StatusConfirmed && a.Status != models.StatusRescheduled {
		return &TransitionError{From: a.Status, Action: ActionComplete}
	}
	if actorID != "" && m.now().Before(a.StartTime) {
		return &TransitionError{From: a.Status, Action: ActionComplete}
	}
	a.Status = models.StatusCompleted
	return nil
}

// Rate appends actorID's rating to a completed appointment. The status does
// not change.
func (m *Machine) Rate(a *models.Appointment, actorID string, rating int, feedback string) error {
	if err := requireParty(a, actorID); err != nil {
		return err
	}
	if a.Status != models.StatusCompleted {
		return &TransitionError{From: a.Status, Action: ActionRate}
	}
	r := models.Rating{UserID: actorID, Rating: rating, Feedback: strings.TrimSpace(feedback)}
	if verr := availability.ValidateStruct(r); verr.HasErrors() {
		return verr
	}
	if a.RatedBy(actorID) {
		return ErrAlreadyRated
	}
	a.Ratings = append(a.Ratings, r)
	return nil
}

func setSlot(a *models.Appointment, slot Slot) {
	a.StartTime = slot.Start
	a.EndTime = slot.Start.Add(time.Duration(slot.Duration) * time.Minute)
	a.Duration = slot.Duration
	a.Date = timegrid.FormatYMD(slot.Start)
}

func requireParty(a *models.Appointment, actorID string) error {
	if !a.HasParty(actorID) {
		return ErrNotParty
	}
	return nil
}

func requireParticipant(a *models.Appointment, actorID string) error {
	if err := requireParty(a, actorID); err != nil {
		return err
	}
	if a.ParticipantID != actorID {
		return ErrNotParticipant
	}
	return nil
}
