package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/models"
)

func TestAutoMigrateCreatesWorkflowTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	tables := []any{
		&models.User{},
		&models.Session{},
		&models.Experience{},
		&models.Education{},
		&models.Project{},
		&models.VerificationRequest{},
		&models.AssociationRequest{},
		&models.AuditLog{},
		&models.CacheEntry{},
	}
	for _, table := range tables {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}

	require.True(t, migrator.HasColumn(&models.Experience{}, "verified_at"))
	require.True(t, migrator.HasColumn(&models.VerificationRequest{}, "active_key"))
	require.True(t, migrator.HasIndex(&models.AssociationRequest{}, "ActiveKey"))
}

func TestAutoMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))
}

func TestActiveKeyAllowsOneLiveAssociationPerUser(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := models.User{Email: "student@example.com", DisplayName: "Student", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)

	key := user.ID
	first := models.AssociationRequest{StudentID: user.ID, Institute: "MIT", RequestedRole: models.RoleStudent, Status: "PENDING", ActiveKey: &key}
	require.NoError(t, db.Create(&first).Error)

	second := models.AssociationRequest{StudentID: first.StudentID, Institute: "MIT", RequestedRole: models.RoleStudent, Status: "PENDING", ActiveKey: &key}
	require.Error(t, db.Create(&second).Error)

	history := models.AssociationRequest{StudentID: first.StudentID, Institute: "MIT", RequestedRole: models.RoleStudent, Status: "REJECTED"}
	require.NoError(t, db.Create(&history).Error)
	another := models.AssociationRequest{StudentID: first.StudentID, Institute: "MIT", RequestedRole: models.RoleStudent, Status: "REJECTED"}
	require.NoError(t, db.Create(&another).Error)
}
