package workflow

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Resolve moves a PENDING row of model to target with a conditional update.
// The WHERE clause on status makes concurrent resolutions race safely: the
// loser updates zero rows and gets ErrAlreadyResolved. updates is merged
// into the column set; active_key is always cleared.
func Resolve(tx *gorm.DB, model any, id string, target Status, updates map[string]any) error {
	if !CanTransition(StatusPending, target) {
		return fmt.Errorf("workflow: invalid target status %q", target)
	}

	columns := map[string]any{
		"status":     target,
		"active_key": nil,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		columns[k] = v
	}

	result := tx.Model(model).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("workflow: resolve: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return classifyMiss(tx, model, id)
	}
	return nil
}

func classifyMiss(tx *gorm.DB, model any, id string) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("workflow: resolve lookup: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrAlreadyResolved
}

// IsAlreadyResolved reports whether err is the benign double-resolution case.
func IsAlreadyResolved(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}
