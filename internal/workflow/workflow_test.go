package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ticket struct {
	ID        string `gorm:"primaryKey"`
	Status    Status
	Note      string
	ActiveKey *string `gorm:"uniqueIndex"`
	UpdatedAt time.Time
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ticket{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seed(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	key := "k-" + id
	require.NoError(t, db.Create(&ticket{ID: id, Status: StatusPending, ActiveKey: &key}).Error)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusNone, StatusPending))
	require.True(t, CanTransition(StatusNone, StatusApproved))
	require.True(t, CanTransition(StatusPending, StatusApproved))
	require.True(t, CanTransition(StatusPending, StatusRejected))

	require.False(t, CanTransition(StatusApproved, StatusPending))
	require.False(t, CanTransition(StatusRejected, StatusApproved))
	require.False(t, CanTransition(StatusApproved, StatusRejected))
	require.False(t, CanTransition(StatusPending, StatusPending))

	require.True(t, StatusApproved.IsTerminal())
	require.True(t, StatusRejected.IsTerminal())
	require.False(t, StatusPending.IsTerminal())
	require.False(t, StatusNone.IsTerminal())
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("approve")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, d.Target())

	d, err = ParseDecision("reject")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, d.Target())

	_, err = ParseDecision("maybe")
	require.Error(t, err)
}

func TestResolveTransitionsOnce(t *testing.T) {
	db := openDB(t)
	seed(t, db, "t1")

	require.NoError(t, Resolve(db, &ticket{}, "t1", StatusApproved, map[string]any{"note": "ok"}))

	var got ticket
	require.NoError(t, db.First(&got, "id = ?", "t1").Error)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, "ok", got.Note)
	require.Nil(t, got.ActiveKey)

	err := Resolve(db, &ticket{}, "t1", StatusRejected, map[string]any{"note": "late"})
	require.ErrorIs(t, err, ErrAlreadyResolved)
	require.True(t, IsAlreadyResolved(err))

	require.NoError(t, db.First(&got, "id = ?", "t1").Error)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, "ok", got.Note)
}

func TestResolveMissingRow(t *testing.T) {
	db := openDB(t)
	require.ErrorIs(t, Resolve(db, &ticket{}, "missing", StatusApproved, nil), ErrNotFound)
}

func TestResolveRejectsInvalidTarget(t *testing.T) {
	db := openDB(t)
	seed(t, db, "t1")
	require.Error(t, Resolve(db, &ticket{}, "t1", StatusPending, nil))
}

func TestResolveConcurrentCallersOnlyOneWins(t *testing.T) {
	db := openDB(t)
	seed(t, db, "t1")

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		resolved int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Resolve(db, &ticket{}, "t1", StatusApproved, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case IsAlreadyResolved(err):
				resolved++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, callers-1, resolved)
}
