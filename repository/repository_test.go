package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/db"
	"github.com/meinhoongagan/availability-engine/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

var day = time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

func appointmentAt(creator, participant string, hour, minute int, status models.AppointmentStatus) *models.Appointment {
	start := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return &models.Appointment{
		CreatorID:     creator,
		ParticipantID: participant,
		Date:          "2025-06-02",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Duration:      30,
		Title:         "sync",
		Status:        status,
	}
}

func TestAvailabilityRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAvailabilityRepository(newTestDB(t))

	if _, err := repo.GetAvailability(ctx, "alice"); !errors.Is(err, availability.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := models.DefaultAvailability("alice")
	p.Buffer = 20
	if err := repo.SaveAvailability(ctx, &p); err != nil {
		t.Fatalf("save: %v", err)
	}

	p.Buffer = 5
	p.AvailabilityStatus = models.StatusLimited
	p.BreakTimes = append(p.BreakTimes, models.BreakWindow{Start: "12:00", End: "13:00"})
	if err := repo.SaveAvailability(ctx, &p); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := repo.GetAvailability(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Buffer != 5 || got.Status() != models.StatusLimited {
		t.Fatalf("expected the second save to replace the first, got %+v", got)
	}
	if len(got.BreakTimes) != 1 || got.BreakTimes[0].Start != "12:00" {
		t.Fatalf("expected break times to round trip, got %+v", got.BreakTimes)
	}
	if got.AppointmentDuration.Max != 120 {
		t.Fatalf("expected duration bounds to round trip, got %+v", got.AppointmentDuration)
	}

	bob := models.DefaultAvailability("bob")
	bob.AvailabilityStatus = models.StatusAway
	if err := repo.SaveAvailability(ctx, &bob); err != nil {
		t.Fatalf("save bob: %v", err)
	}
	statuses, err := repo.AvailabilityStatuses(ctx)
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if statuses["alice"] != models.StatusLimited || statuses["bob"] != models.StatusAway || len(statuses) != 2 {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestActiveBookingsFiltersStatusPartyAndWindow(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := NewAppointmentRepository(conn)

	fixtures := []*models.Appointment{
		appointmentAt("alice", "bob", 10, 0, models.StatusPending),
		appointmentAt("carol", "alice", 11, 0, models.StatusConfirmed),
		appointmentAt("alice", "dave", 12, 0, models.StatusCancelled),
		appointmentAt("erin", "frank", 13, 0, models.StatusConfirmed),
	}
	nextWeek := appointmentAt("alice", "bob", 9, 0, models.StatusRescheduled)
	nextWeek.StartTime = nextWeek.StartTime.AddDate(0, 0, 7)
	nextWeek.EndTime = nextWeek.EndTime.AddDate(0, 0, 7)
	fixtures = append(fixtures, nextWeek)

	for _, a := range fixtures {
		if err := conn.Create(a).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := repo.ActiveBookings(ctx, []string{"alice", ""}, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("active bookings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active bookings for alice, got %d", len(got))
	}
	if got[0].StartTime.Hour() != 10 || got[1].StartTime.Hour() != 11 {
		t.Fatalf("expected bookings ordered by start, got %v and %v", got[0].StartTime, got[1].StartTime)
	}

	none, err := repo.ActiveBookings(ctx, []string{""}, day, day.AddDate(0, 0, 1))
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no bookings for empty ids, got %v %v", none, err)
	}
}

func TestCreateCheckedRunsRecheckAgainstCommittedRows(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(newTestDB(t))

	first := appointmentAt("alice", "bob", 10, 0, models.StatusPending)
	var seen []models.Appointment
	if err := repo.CreateChecked(ctx, first, func(existing []models.Appointment) error {
		seen = existing
		return nil
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected an empty calendar, got %d", len(seen))
	}
	if first.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}

	second := appointmentAt("carol", "bob", 10, 30, models.StatusPending)
	rejected := errors.New("rejected")
	err := repo.CreateChecked(ctx, second, func(existing []models.Appointment) error {
		seen = existing
		return rejected
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("expected recheck error, got %v", err)
	}
	if len(seen) != 1 || seen[0].ID != first.ID {
		t.Fatalf("expected the recheck to see bob's booking, got %+v", seen)
	}

	list, err := repo.ListForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected the rejected booking to be rolled back, got %d rows", len(list))
	}
}

func TestUpdateChecked(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(newTestDB(t))

	a := appointmentAt("alice", "bob", 10, 0, models.StatusPending)
	if err := repo.CreateChecked(ctx, a, func([]models.Appointment) error { return nil }); err != nil {
		t.Fatalf("create: %v", err)
	}

	a.Status = models.StatusConfirmed
	a.Description = "agenda"
	if err := repo.UpdateChecked(ctx, a, models.StatusPending, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusConfirmed || got.Description != "agenda" {
		t.Fatalf("expected update to persist, got %+v", got)
	}

	a.DeclinedReason = ""
	a.Ratings = append(a.Ratings, models.Rating{UserID: "bob", Rating: 4})
	a.Status = models.StatusCompleted
	var seen int
	if err := repo.UpdateChecked(ctx, a, models.StatusConfirmed, func(existing []models.Appointment) error {
		seen = len(existing)
		return nil
	}); err != nil {
		t.Fatalf("checked update: %v", err)
	}
	if seen != 1 {
		t.Fatalf("expected the recheck to see the row itself, got %d", seen)
	}
	got, _ = repo.Get(ctx, a.ID)
	if len(got.Ratings) != 1 || got.Ratings[0].Rating != 4 {
		t.Fatalf("expected ratings to persist, got %+v", got.Ratings)
	}

	ghost := appointmentAt("alice", "bob", 15, 0, models.StatusPending)
	ghost.ID = "missing"
	if err := repo.UpdateChecked(ctx, ghost, models.StatusPending, nil); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown row, got %v", err)
	}
}

func TestUpdateCheckedRejectsStaleCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(newTestDB(t))

	a := appointmentAt("alice", "bob", 10, 0, models.StatusPending)
	if err := repo.CreateChecked(ctx, a, func([]models.Appointment) error { return nil }); err != nil {
		t.Fatalf("create: %v", err)
	}
	creatorCopy, _ := repo.Get(ctx, a.ID)
	participantCopy, _ := repo.Get(ctx, a.ID)

	creatorCopy.Status = models.StatusCancelled
	if err := repo.UpdateChecked(ctx, &creatorCopy, models.StatusPending, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	participantCopy.Status = models.StatusConfirmed
	if err := repo.UpdateChecked(ctx, &participantCopy, models.StatusPending, nil); !errors.Is(err, booking.ErrStaleUpdate) {
		t.Fatalf("expected ErrStaleUpdate for a stale copy, got %v", err)
	}
	got, _ := repo.Get(ctx, a.ID)
	if got.Status != models.StatusCancelled {
		t.Fatalf("expected cancel to stand, got %s", got.Status)
	}
}

func TestUpdateCheckedKeepsReminderStamps(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(newTestDB(t))

	a := appointmentAt("alice", "bob", 10, 0, models.StatusConfirmed)
	if err := repo.CreateChecked(ctx, a, func([]models.Appointment) error { return nil }); err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, _ := repo.Get(ctx, a.ID)
	stamp := day.Add(9 * time.Hour)
	if err := repo.MarkReminded(ctx, a.ID, stamp); err != nil {
		t.Fatalf("mark reminded: %v", err)
	}

	stale.Description = "agenda"
	if err := repo.UpdateChecked(ctx, &stale, models.StatusConfirmed, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.Get(ctx, a.ID)
	if got.Description != "agenda" || got.RemindedAt == nil || !got.RemindedAt.Equal(stamp) {
		t.Fatalf("expected details to persist and the reminder stamp to survive, got %+v", got)
	}

	got.RemindedAt = nil
	got.StartTime = got.StartTime.Add(time.Hour)
	got.EndTime = got.EndTime.Add(time.Hour)
	got.Status = models.StatusRescheduled
	if err := repo.UpdateChecked(ctx, &got, models.StatusConfirmed, func([]models.Appointment) error { return nil }); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	got, _ = repo.Get(ctx, a.ID)
	if got.RemindedAt != nil {
		t.Fatalf("expected a reschedule to clear the reminder stamp, got %v", got.RemindedAt)
	}
}

func TestGetAndDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(newTestDB(t))

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "nope"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}

	a := appointmentAt("alice", "bob", 10, 0, models.StatusPending)
	if err := repo.CreateChecked(ctx, a, func([]models.Appointment) error { return nil }); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, a.ID); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected deleted row to be gone, got %v", err)
	}
}

func TestSchedulerQueries(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := NewAppointmentRepository(conn)

	soon := appointmentAt("alice", "bob", 10, 30, models.StatusConfirmed)
	later := appointmentAt("alice", "carol", 13, 0, models.StatusConfirmed)
	pending := appointmentAt("alice", "dave", 10, 45, models.StatusPending)
	running := appointmentAt("erin", "bob", 9, 45, models.StatusRescheduled)
	finished := appointmentAt("erin", "frank", 8, 0, models.StatusConfirmed)
	for _, a := range []*models.Appointment{soon, later, pending, running, finished} {
		if err := conn.Create(a).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	now := day.Add(10 * time.Hour)

	due, err := repo.DueReminders(ctx, now, time.Hour)
	if err != nil {
		t.Fatalf("due reminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != soon.ID {
		t.Fatalf("expected only the confirmed appointment within the hour, got %+v", due)
	}
	if err := repo.MarkReminded(ctx, soon.ID, now); err != nil {
		t.Fatalf("mark reminded: %v", err)
	}
	if due, _ = repo.DueReminders(ctx, now, time.Hour); len(due) != 0 {
		t.Fatalf("expected reminded appointment to be skipped, got %d", len(due))
	}

	started, err := repo.DueStarts(ctx, now)
	if err != nil {
		t.Fatalf("due starts: %v", err)
	}
	if len(started) != 1 || started[0].ID != running.ID {
		t.Fatalf("expected only the running appointment, got %+v", started)
	}
	if err := repo.MarkStartNotified(ctx, running.ID, now); err != nil {
		t.Fatalf("mark started: %v", err)
	}
	if started, _ = repo.DueStarts(ctx, now); len(started) != 0 {
		t.Fatalf("expected announced start to be skipped, got %d", len(started))
	}

	ended, err := repo.ListEndedBefore(ctx, now)
	if err != nil {
		t.Fatalf("ended: %v", err)
	}
	if len(ended) != 1 || ended[0].ID != finished.ID {
		t.Fatalf("expected only the finished appointment, got %+v", ended)
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	u := &models.User{Name: "Alice", Email: " Alice@Example.com ", Password: "hash"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" || u.Email != "alice@example.com" {
		t.Fatalf("expected id and normalized email, got %+v", u)
	}

	dup := &models.User{Name: "Other", Email: "ALICE@example.com", Password: "x"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	byEmail, err := repo.FindByEmail(ctx, "alice@EXAMPLE.com")
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("find by email: %+v %v", byEmail, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
