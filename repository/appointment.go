package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/models"
)

// AppointmentRepository is the authoritative appointment store. Checked
// writes read the parties' bookings and re-run admission inside the same
// transaction; on Postgres the parties are additionally serialized with
// transaction-scoped advisory locks.
type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (models.Appointment, error) {
	var a models.Appointment
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Appointment{}, booking.ErrNotFound
	}
	return a, err
}

func (r *AppointmentRepository) ListForUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	var list []models.Appointment
	err := r.db.WithContext(ctx).
		Where("creator_id = ? OR participant_id = ?", userID, userID).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

// ListEndedBefore returns confirmed or rescheduled appointments whose end is before t.
func (r *AppointmentRepository) ListEndedBefore(ctx context.Context, t time.Time) ([]models.Appointment, error) {
	var list []models.Appointment
	err := r.db.WithContext(ctx).
		Where("status IN ?", confirmedStatuses()).
		Where("end_time < ?", t).
		Order("end_time ASC").
		Find(&list).Error
	return list, err
}

// ActiveBookings implements availability.BookingSource.
func (r *AppointmentRepository) ActiveBookings(ctx context.Context, userIDs []string, from, to time.Time) ([]models.Appointment, error) {
	return activeBookings(r.db.WithContext(ctx), userIDs, from, to)
}

func activeBookings(tx *gorm.DB, userIDs []string, from, to time.Time) ([]models.Appointment, error) {
	ids := nonEmpty(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	var list []models.Appointment
	err := tx.
		Where("status IN ?", models.ActiveStatuses()).
		Where("start_time >= ? AND start_time < ?", from, to).
		Where("creator_id IN ? OR participant_id IN ?", ids, ids).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

func (r *AppointmentRepository) CreateChecked(ctx context.Context, a *models.Appointment, recheck booking.Recheck) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.checkInTx(tx, a, recheck); err != nil {
			return err
		}
		return tx.Create(a).Error
	})
}

// UpdateChecked writes a back only if the row still holds status from, so a
// transition decided on a stale read cannot overwrite a concurrent one. The
// cron stamps are only written by a reschedule, which clears them.
func (r *AppointmentRepository) UpdateChecked(ctx context.Context, a *models.Appointment, from models.AppointmentStatus, recheck booking.Recheck) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if recheck != nil {
			if err := r.checkInTx(tx, a, recheck); err != nil {
				return err
			}
		}
		omit := []string{"id", "created_at"}
		if recheck == nil {
			omit = append(omit, "reminded_at", "start_notified_at")
		}
		res := tx.Model(&models.Appointment{}).
			Where("id = ? AND status = ?", a.ID, from).
			Select("*").
			Omit(omit...).
			Updates(a)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		var count int64
		if err := tx.Model(&models.Appointment{}).Where("id = ?", a.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return booking.ErrNotFound
		}
		return booking.ErrStaleUpdate
	})
}

func (r *AppointmentRepository) checkInTx(tx *gorm.DB, a *models.Appointment, recheck booking.Recheck) error {
	parties := []string{a.CreatorID, a.ParticipantID}
	if err := lockParties(tx, parties); err != nil {
		return err
	}
	from, to := booking.BookingWindow(a.StartTime)
	existing, err := activeBookings(tx, parties, from, to)
	if err != nil {
		return err
	}
	return recheck(existing)
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Appointment{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// DueReminders lists confirmed appointments starting within (now, now+lead]
// that were not reminded yet.
func (r *AppointmentRepository) DueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]models.Appointment, error) {
	var list []models.Appointment
	err := r.db.WithContext(ctx).
		Where("status IN ?", confirmedStatuses()).
		Where("reminded_at IS NULL").
		Where("start_time > ? AND start_time <= ?", now, now.Add(lead)).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

// DueStarts lists confirmed appointments in progress at now whose start was
// not announced yet.
func (r *AppointmentRepository) DueStarts(ctx context.Context, now time.Time) ([]models.Appointment, error) {
	var list []models.Appointment
	err := r.db.WithContext(ctx).
		Where("status IN ?", confirmedStatuses()).
		Where("start_notified_at IS NULL").
		Where("start_time <= ? AND end_time > ?", now, now).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

func (r *AppointmentRepository) MarkReminded(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Appointment{}).Where("id = ?", id).Update("reminded_at", at).Error
}

func (r *AppointmentRepository) MarkStartNotified(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Appointment{}).Where("id = ?", id).Update("start_notified_at", at).Error
}

// lockParties takes one advisory lock per party in a fixed order so two
// bookings touching the same calendar commit one after the other.
func lockParties(tx *gorm.DB, userIDs []string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	ids := nonEmpty(userIDs)
	sort.Strings(ids)
	for _, id := range ids {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", id).Error; err != nil {
			return err
		}
	}
	return nil
}

func confirmedStatuses() []models.AppointmentStatus {
	return []models.AppointmentStatus{models.StatusConfirmed, models.StatusRescheduled}
}

func nonEmpty(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
