package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/models"
)

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Experience{},
		&models.Education{},
		&models.Project{},
		&models.VerificationRequest{},
		&models.AssociationRequest{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}
