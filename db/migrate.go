package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/meinhoongagan/availability-engine/models"
)

// Migrate creates or updates the tables of every persisted model.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.AvailabilityProfile{},
		&models.Appointment{},
	)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
