package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// Recheck re-runs admission inside the store's commit against the bookings
// the store just read. A non-nil error aborts the commit.
type Recheck func(existing []models.Appointment) error

// Store persists appointments. Get returns ErrNotFound for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (models.Appointment, error)
	ListForUser(ctx context.Context, userID string) ([]models.Appointment, error)
	ListEndedBefore(ctx context.Context, t time.Time) ([]models.Appointment, error)
	CreateChecked(ctx context.Context, a *models.Appointment, recheck Recheck) error
	// UpdateChecked saves a only while the stored status is still from and
	// returns ErrStaleUpdate otherwise. A nil recheck skips the admission
	// re-check and leaves the reminder stamps as stored; a non-nil recheck
	// moves the slot and writes the stamps from a.
	UpdateChecked(ctx context.Context, a *models.Appointment, from models.AppointmentStatus, recheck Recheck) error
	Delete(ctx context.Context, id string) error
}

// Profiles resolves a user's availability profile, defaults included.
type Profiles interface {
	Profile(ctx context.Context, userID string) (models.AvailabilityProfile, error)
}

// Notifier hears about every committed change.
type Notifier interface {
	AppointmentCreated(ctx context.Context, a models.Appointment)
	AppointmentUpdated(ctx context.Context, a models.Appointment)
	AppointmentStatusChanged(ctx context.Context, a models.Appointment, from models.AppointmentStatus)
	AppointmentDeleted(ctx context.Context, a models.Appointment)
}

type Service struct {
	store    Store
	profiles Profiles
	bookings availability.BookingSource
	machine  *Machine
	notifier Notifier
	location *time.Location
	logger   *slog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, profiles Profiles, bookings availability.BookingSource, machine *Machine, opts ...Option) *Service {
	if machine == nil {
		machine = NewMachine(nil)
	}
	s := &Service{
		store:    store,
		profiles: profiles,
		bookings: bookings,
		machine:  machine,
		location: time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookRequest is the payload of a new booking. The creator is the caller.
type BookRequest struct {
	ParticipantID string `json:"participantId" validate:"required"`
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Message       string `json:"message" validate:"max=2000"`
	MeetingType   string `json:"meetingType" validate:"max=64"`
	Date          string `json:"date" validate:"required"`
	// Time accepts "HH:MM" as well as "h:MM AM".
	Time     string `json:"time" validate:"required"`
	Duration int    `json:"duration" validate:"gte=0"`
}

// Book creates a pending appointment of the participant's time after it
// passes admission twice: once here and once inside the store's commit.
func (s *Service) Book(ctx context.Context, creatorID string, req BookRequest) (models.Appointment, error) {
	verr := availability.ValidateStruct(req)
	if req.ParticipantID != "" && req.ParticipantID == creatorID {
		verr.Add("participantId", "cannot book an appointment with yourself")
	}
	start, startOK := s.parseSlot(req.Date, req.Time, verr)
	if verr.HasErrors() || !startOK {
		return models.Appointment{}, verr
	}

	owner, err := s.profiles.Profile(ctx, req.ParticipantID)
	if err != nil {
		return models.Appointment{}, err
	}
	requester, err := s.profiles.Profile(ctx, creatorID)
	if err != nil {
		return models.Appointment{}, err
	}
	duration, err := resolveDuration(req.Duration, owner)
	if err != nil {
		return models.Appointment{}, err
	}

	description := req.Description
	if description == "" {
		description = req.Message
	}
	a := models.Appointment{
		CreatorID:     creatorID,
		ParticipantID: req.ParticipantID,
		Title:         strings.TrimSpace(req.Title),
		Description:   description,
		MeetingType:   req.MeetingType,
		Status:        models.StatusPending,
	}
	setSlot(&a, Slot{Start: start, Duration: duration})

	check := s.checker(a, owner, &requester)
	from, to := BookingWindow(start)
	existing, err := s.bookings.ActiveBookings(ctx, []string{a.ParticipantID, a.CreatorID}, from, to)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("load bookings: %w", err)
	}
	if d := check(existing); !d.Admitted {
		return models.Appointment{}, d.Err()
	}
	if err := offered(start, owner); err != nil {
		return models.Appointment{}, err
	}

	if err := s.store.CreateChecked(ctx, &a, s.recheck(check)); err != nil {
		if errors.Is(err, ErrRemoteRejected) {
			s.logger.Info("booking lost commit-time re-check",
				"creator_id", creatorID, "participant_id", a.ParticipantID, "start", a.StartTime, "error", err)
		}
		return models.Appointment{}, err
	}

	s.logger.Info("appointment created", "appointment_id", a.ID, "creator_id", a.CreatorID, "participant_id", a.ParticipantID)
	if s.notifier != nil {
		s.notifier.AppointmentCreated(ctx, a)
	}
	return a, nil
}

// Patch is a partial update. Reschedule fields win over Status; a Rating is
// applied after any status change.
type Patch struct {
	Status         *models.AppointmentStatus `json:"status"`
	DeclinedReason *string                   `json:"declinedReason"`
	Rating         *int                      `json:"rating"`
	Feedback       *string                   `json:"feedback"`
	Date           *string                   `json:"date"`
	Time           *string                   `json:"time"`
	Duration       *int                      `json:"duration"`
	Title          *string                   `json:"title"`
	Description    *string                   `json:"description"`
	MeetingType    *string                   `json:"meetingType"`
}

func (p Patch) reschedules() bool {
	return p.Date != nil || p.Time != nil || p.Duration != nil
}

// Update applies p on behalf of actorID.
func (s *Service) Update(ctx context.Context, actorID, id string, p Patch) (models.Appointment, error) {
	a, err := s.Get(ctx, actorID, id)
	if err != nil {
		return models.Appointment{}, err
	}
	from := a.Status

	var recheck Recheck
	switch {
	case p.reschedules():
		recheck, err = s.reschedule(ctx, &a, actorID, p)
	case p.Status != nil && *p.Status != a.Status:
		err = s.transition(ctx, &a, actorID, *p.Status, p.DeclinedReason)
	}
	if err != nil {
		return models.Appointment{}, err
	}

	if p.Rating != nil {
		feedback := ""
		if p.Feedback != nil {
			feedback = *p.Feedback
		}
		if err := s.machine.Rate(&a, actorID, *p.Rating, feedback); err != nil {
			return models.Appointment{}, err
		}
	}
	if err := applyDetails(&a, p); err != nil {
		return models.Appointment{}, err
	}

	if err := s.store.UpdateChecked(ctx, &a, from, recheck); err != nil {
		return models.Appointment{}, err
	}

	if a.Status != from {
		s.logger.Info("appointment status changed", "appointment_id", a.ID, "from", from, "to", a.Status, "actor_id", actorID)
		if s.notifier != nil {
			s.notifier.AppointmentStatusChanged(ctx, a, from)
		}
	} else if s.notifier != nil {
		s.notifier.AppointmentUpdated(ctx, a)
	}
	return a, nil
}

func (s *Service) transition(ctx context.Context, a *models.Appointment, actorID string, to models.AppointmentStatus, reason *string) error {
	switch to {
	case models.StatusConfirmed:
		return s.machine.Accept(a, actorID)
	case models.StatusDeclined:
		r := ""
		if reason != nil {
			r = *reason
		}
		return s.machine.Decline(a, actorID, r)
	case models.StatusCancelled:
		if !a.HasParty(actorID) {
			return ErrNotParty
		}
		owner, err := s.profiles.Profile(ctx, a.ParticipantID)
		if err != nil {
			return err
		}
		return s.machine.Cancel(a, actorID, owner.CancelNotice)
	case models.StatusCompleted:
		return s.machine.Complete(a, actorID)
	case models.StatusRescheduled:
		verr := &availability.ValidationError{}
		verr.Add("date", "a new date and time are required to reschedule")
		return verr
	case models.StatusPending:
		return &TransitionError{From: a.Status, Action: Action("reopen")}
	default:
		verr := &availability.ValidationError{}
		verr.Add("status", "unknown status "+string(to))
		return verr
	}
}

func (s *Service) reschedule(ctx context.Context, a *models.Appointment, actorID string, p Patch) (Recheck, error) {
	if !a.HasParty(actorID) {
		return nil, ErrNotParty
	}
	date, clock := a.Date, timegrid.ClockOf(a.StartTime.In(s.location))
	if p.Date != nil {
		date = *p.Date
	}
	if p.Time != nil {
		clock = *p.Time
	}
	verr := &availability.ValidationError{}
	start, ok := s.parseSlot(date, clock, verr)
	if !ok {
		return nil, verr
	}

	owner, err := s.profiles.Profile(ctx, a.ParticipantID)
	if err != nil {
		return nil, err
	}
	requester, err := s.profiles.Profile(ctx, a.CreatorID)
	if err != nil {
		return nil, err
	}
	requested := a.Duration
	if p.Duration != nil {
		requested = *p.Duration
	}
	duration, err := resolveDuration(requested, owner)
	if err != nil {
		return nil, err
	}

	moved := *a
	setSlot(&moved, Slot{Start: start, Duration: duration})
	check := s.checker(moved, owner, &requester)
	from, to := BookingWindow(start)
	existing, err := s.bookings.ActiveBookings(ctx, []string{a.ParticipantID, a.CreatorID}, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	if err := s.machine.Reschedule(a, actorID, Slot{Start: start, Duration: duration}, check(existing)); err != nil {
		return nil, err
	}
	if err := offered(start, owner); err != nil {
		return nil, err
	}
	return s.recheck(check), nil
}

// Delete removes the appointment for good. Cancelling is a status change instead.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	a, err := s.Get(ctx, actorID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, a.ID); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", a.ID, "actor_id", actorID)
	if s.notifier != nil {
		s.notifier.AppointmentDeleted(ctx, a)
	}
	return nil
}

// Get returns the appointment if actorID is one of its parties.
func (s *Service) Get(ctx context.Context, actorID, id string) (models.Appointment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if !a.HasParty(actorID) {
		return models.Appointment{}, ErrNotParty
	}
	return a, nil
}

// List returns every appointment userID is a party to.
func (s *Service) List(ctx context.Context, userID string) ([]models.Appointment, error) {
	return s.store.ListForUser(ctx, userID)
}

// CompleteElapsed completes every confirmed appointment whose end has passed.
func (s *Service) CompleteElapsed(ctx context.Context) ([]models.Appointment, error) {
	due, err := s.store.ListEndedBefore(ctx, s.machine.Now())
	if err != nil {
		return nil, err
	}
	var done []models.Appointment
	for i := range due {
		a := due[i]
		from := a.Status
		if err := s.machine.Complete(&a, ""); err != nil {
			continue
		}
		if err := s.store.UpdateChecked(ctx, &a, from, nil); err != nil {
			s.logger.Error("auto-complete failed", "appointment_id", a.ID, "error", err)
			continue
		}
		if s.notifier != nil {
			s.notifier.AppointmentStatusChanged(ctx, a, from)
		}
		done = append(done, a)
	}
	return done, nil
}

// checker binds Admit to a candidate appointment: the participant's calendar
// is the owner's, the creator is the requester.
func (s *Service) checker(a models.Appointment, owner models.AvailabilityProfile, requesterProfile *models.AvailabilityProfile) func([]models.Appointment) availability.Decision {
	return func(existing []models.Appointment) availability.Decision {
		ownerCal, requesterCal := availability.SplitCalendars(a.ParticipantID, a.CreatorID, existing)
		requesterCal.Profile = requesterProfile
		return availability.Admit(availability.Request{
			Start:     a.StartTime,
			Owner:     ownerCal,
			Requester: requesterCal,
			Profile:   owner,
			Now:       s.machine.Now(),
			IgnoreID:  a.ID,
		})
	}
}

func (s *Service) recheck(check func([]models.Appointment) availability.Decision) Recheck {
	return func(existing []models.Appointment) error {
		if d := check(existing); !d.Admitted {
			return fmt.Errorf("%w: %s", ErrRemoteRejected, d.Message)
		}
		return nil
	}
}

func (s *Service) parseSlot(date, clock string, verr *availability.ValidationError) (time.Time, bool) {
	day, ok := timegrid.ParseYMD(date, s.location)
	if !ok {
		if date != "" {
			verr.Add("date", "must be a YYYY-MM-DD date")
		}
		return time.Time{}, false
	}
	hhmm := strings.TrimSpace(clock)
	if _, ok := timegrid.ParseHHMM(hhmm); !ok {
		converted, ok := timegrid.From12Hour(hhmm)
		if !ok {
			if clock != "" {
				verr.Add("time", "must be HH:MM or h:MM AM/PM")
			}
			return time.Time{}, false
		}
		hhmm = converted
	}
	start, _ := timegrid.Combine(day, hhmm)
	return start, true
}

// BookingWindow is the range of existing bookings that can affect admission of
// a slot starting at start, buffers across midnight included.
func BookingWindow(start time.Time) (time.Time, time.Time) {
	day := timegrid.StartOfDay(start)
	return day.AddDate(0, 0, -1), day.AddDate(0, 0, 2)
}

// resolveDuration maps 0 to the owner's slot length and bounds anything else.
func resolveDuration(requested int, owner models.AvailabilityProfile) (int, error) {
	if requested == 0 {
		return owner.SlotDuration, nil
	}
	if !owner.AppointmentDuration.Contains(requested) {
		verr := &availability.ValidationError{}
		verr.Add("duration", fmt.Sprintf("must be between %d and %d minutes",
			owner.AppointmentDuration.Min, owner.AppointmentDuration.Max))
		return 0, verr
	}
	return requested, nil
}

// offered rejects starts that are not one of the owner's generated slots.
func offered(start time.Time, owner models.AvailabilityProfile) error {
	for _, slot := range availability.Generate(start, owner) {
		if slot.Equal(start) {
			return nil
		}
	}
	verr := &availability.ValidationError{}
	verr.Add("time", timegrid.To12Hour(timegrid.ClockOf(start))+" is not an offered slot on "+timegrid.FormatYMD(start))
	return verr
}

func applyDetails(a *models.Appointment, p Patch) error {
	if p.Title == nil && p.Description == nil && p.MeetingType == nil {
		return nil
	}
	if a.Status.Terminal() && a.Status != models.StatusCompleted {
		return &TransitionError{From: a.Status, Action: Action("edit")}
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			verr := &availability.ValidationError{}
			verr.Add("title", "is required")
			return verr
		}
		a.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.MeetingType != nil {
		a.MeetingType = *p.MeetingType
	}
	return nil
}
