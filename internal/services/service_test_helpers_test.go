package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/database/testutil"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/workflow"
	"github.com/charlesng35/verifolio/pkg/mail"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func createUser(t *testing.T, db *gorm.DB, email string, role models.Role, institute string) *models.User {
	t.Helper()

	user := &models.User{Email: email, DisplayName: email, Role: role, IsActive: true}
	if institute != "" {
		user.Institute = &institute
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type recordingInvalidator struct {
	mu     sync.Mutex
	events []workflow.Event
}

func (r *recordingInvalidator) Publish(_ context.Context, event workflow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingInvalidator) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Topic)
	}
	return out
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}
