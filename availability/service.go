package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

// ProfileStore persists availability profiles.
type ProfileStore interface {
	GetAvailability(ctx context.Context, userID string) (models.AvailabilityProfile, error)
	SaveAvailability(ctx context.Context, profile *models.AvailabilityProfile) error
}

// ProfileCache is an optional read-through cache in front of the store.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (models.AvailabilityProfile, bool, error)
	Set(ctx context.Context, profile models.AvailabilityProfile) error
}

// BookingSource lists calendar-blocking appointments of any of the users
// that start inside [from, to).
type BookingSource interface {
	ActiveBookings(ctx context.Context, userIDs []string, from, to time.Time) ([]models.Appointment, error)
}

// Notifier is told about every saved profile so connected clients can react.
type Notifier interface {
	AvailabilityChanged(ctx context.Context, profile models.AvailabilityProfile)
}

// Service reads and replaces availability profiles and lists admissible slots.
type Service struct {
	store    ProfileStore
	bookings BookingSource
	cache    ProfileCache
	notifier Notifier
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithCache(cache ProfileCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store ProfileStore, bookings BookingSource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		bookings: bookings,
		now:      time.Now,
		location: time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the time zone the service lays out calendar days in.
func (s *Service) Location() *time.Location {
	return s.location
}

// Profile returns the owner's profile, falling back to the defaults when the
// owner never saved one.
func (s *Service) Profile(ctx context.Context, ownerID string) (models.AvailabilityProfile, error) {
	if s.cache != nil {
		profile, ok, err := s.cache.Get(ctx, ownerID)
		if err != nil {
			s.logger.Warn("availability cache read failed", "user_id", ownerID, "error", err)
		} else if ok {
			return profile, nil
		}
	}

	profile, err := s.store.GetAvailability(ctx, ownerID)
	switch {
	case errors.Is(err, ErrNotFound):
		return models.DefaultAvailability(ownerID), nil
	case err != nil:
		return models.AvailabilityProfile{}, fmt.Errorf("load availability for %s: %w", ownerID, err)
	}

	s.remember(ctx, profile)
	return profile, nil
}

// Save validates and replaces the owner's whole profile.
func (s *Service) Save(ctx context.Context, ownerID string, profile models.AvailabilityProfile) (models.AvailabilityProfile, error) {
	profile.UserID = ownerID
	if profile.AvailabilityStatus == "" {
		profile.AvailabilityStatus = models.StatusAvailable
	}
	if profile.Days == nil {
		profile.Days = datatypes.JSONSlice[int]{}
	}
	if profile.BreakTimes == nil {
		profile.BreakTimes = datatypes.JSONSlice[models.BreakWindow]{}
	}
	if err := ValidateProfile(profile); err != nil {
		return models.AvailabilityProfile{}, err
	}

	profile.UpdatedAt = s.now()
	if err := s.store.SaveAvailability(ctx, &profile); err != nil {
		return models.AvailabilityProfile{}, fmt.Errorf("save availability for %s: %w", ownerID, err)
	}
	s.remember(ctx, profile)

	s.logger.Info("availability updated", "user_id", ownerID, "status", profile.AvailabilityStatus)
	if s.notifier != nil {
		s.notifier.AvailabilityChanged(ctx, profile)
	}
	return profile, nil
}

// Slot is one generated slot together with its admission outcome for the
// requesting user.
type Slot struct {
	Start    time.Time `json:"startTime"`
	Time     string    `json:"time"`
	Label    string    `json:"label"`
	Admitted bool      `json:"admitted"`
	Reason   Reason    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Slots lays out the owner's slots on date and runs every one of them through
// Admit for requesterID.
func (s *Service) Slots(ctx context.Context, ownerID, requesterID string, date time.Time) ([]Slot, error) {
	day := timegrid.StartOfDay(date.In(s.location))

	owner, err := s.Profile(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	starts := Generate(day, owner)
	if len(starts) == 0 {
		return []Slot{}, nil
	}

	var requesterProfile *models.AvailabilityProfile
	if requesterID != "" && requesterID != ownerID {
		p, err := s.Profile(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		requesterProfile = &p
	}

	// Neighbouring days are loaded so buffers across midnight still apply.
	booked, err := s.bookings.ActiveBookings(ctx, []string{ownerID, requesterID}, day.AddDate(0, 0, -1), day.AddDate(0, 0, 2))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	ownerCal, requesterCal := SplitCalendars(ownerID, requesterID, booked)
	requesterCal.Profile = requesterProfile

	now := s.now()
	slots := make([]Slot, 0, len(starts))
	for _, start := range starts {
		decision := Admit(Request{
			Start:     start,
			Owner:     ownerCal,
			Requester: requesterCal,
			Profile:   owner,
			Now:       now,
		})
		clock := timegrid.ClockOf(start)
		slots = append(slots, Slot{
			Start:    start,
			Time:     clock,
			Label:    timegrid.To12Hour(clock),
			Admitted: decision.Admitted,
			Reason:   decision.Reason,
			Message:  decision.Message,
		})
	}
	return slots, nil
}

func (s *Service) remember(ctx context.Context, profile models.AvailabilityProfile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, profile); err != nil {
		s.logger.Warn("availability cache write failed", "user_id", profile.UserID, "error", err)
	}
}

// SplitCalendars sorts bookings onto the owner's and requester's calendars.
// A booking between the two lands on both.
func SplitCalendars(ownerID, requesterID string, bookings []models.Appointment) (Calendar, Calendar) {
	owner := Calendar{UserID: ownerID}
	requester := Calendar{UserID: requesterID}
	for _, b := range bookings {
		if b.HasParty(ownerID) {
			owner.Bookings = append(owner.Bookings, b)
		}
		if requesterID != ownerID && b.HasParty(requesterID) {
			requester.Bookings = append(requester.Bookings, b)
		}
	}
	return owner, requester
}
