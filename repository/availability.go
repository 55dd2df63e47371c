package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/models"
)

type AvailabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetAvailability returns availability.ErrNotFound when the user never saved a profile.
func (r *AvailabilityRepository) GetAvailability(ctx context.Context, userID string) (models.AvailabilityProfile, error) {
	var p models.AvailabilityProfile
	err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.AvailabilityProfile{}, availability.ErrNotFound
	}
	return p, err
}

// SaveAvailability replaces the whole row of the profile's owner.
func (r *AvailabilityRepository) SaveAvailability(ctx context.Context, p *models.AvailabilityProfile) error {
	p.UpdatedAt = r.db.NowFunc()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(p).
		Error
}

// AvailabilityStatuses maps every user with a saved profile to their status.
func (r *AvailabilityRepository) AvailabilityStatuses(ctx context.Context) (map[string]models.AvailabilityStatus, error) {
	var rows []struct {
		UserID             string
		AvailabilityStatus models.AvailabilityStatus
	}
	err := r.db.WithContext(ctx).
		Model(&models.AvailabilityProfile{}).
		Select("user_id", "availability_status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]models.AvailabilityStatus, len(rows))
	for _, row := range rows {
		status := row.AvailabilityStatus
		if status == "" {
			status = models.StatusAvailable
		}
		statuses[row.UserID] = status
	}
	return statuses, nil
}
