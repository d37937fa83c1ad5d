package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/handlers/testutil"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/notifications"
	"github.com/charlesng35/verifolio/internal/workflow"
)

func TestEventsHandler_PushesInvalidations(t *testing.T) {
	env := testutil.NewEnv(t)
	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	student := env.CreateUser("stu@uni.edu", models.RoleStudent, "")
	verifier := env.CreateUser("ver@inst.edu", models.RoleVerifier, "Inst")
	studentToken := env.Login(student)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.Login(verifier))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/events?topics=verification"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return env.Hub.Subscribers(workflow.TopicVerification, verifier.ID) > 0
	}, time.Second, 10*time.Millisecond)

	claimID := createExperience(t, env, studentToken)
	w := env.Request(http.MethodPost, "/verify/request/experience/"+claimID, map[string]string{"verifierEmail": verifier.Email}, studentToken)
	require.Equal(t, http.StatusCreated, w.Code)

	var msg notifications.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "invalidate", msg.Event)
	require.Equal(t, workflow.TopicVerification, msg.Topic)
	require.Equal(t, claimID, msg.SubjectID)
	require.Equal(t, workflow.StatusPending, msg.Status)
}

func TestEventsHandler_RequiresSession(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/events", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
