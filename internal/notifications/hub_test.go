package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/workflow"
)

func dialHub(t *testing.T, hub *Hub, userID string, topics ...string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, topics, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	topic := workflow.TopicVerification
	if len(topics) > 0 {
		topic = topics[0]
	}
	require.Eventually(t, func() bool {
		return hub.Subscribers(topic, userID) > 0
	}, time.Second, 10*time.Millisecond)
	return conn
}

func TestHubPublishReachesRecipientsOnly(t *testing.T) {
	hub := NewHub(nil)
	alice := dialHub(t, hub, "alice")
	bob := dialHub(t, hub, "bob")

	hub.Publish(context.Background(), workflow.Event{
		Topic:     workflow.TopicVerification,
		RequestID: "req-1",
		SubjectID: "claim-1",
		Status:    workflow.StatusApproved,
		UserIDs:   []string{"alice"},
	})

	var msg Message
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&msg))
	require.Equal(t, "invalidate", msg.Event)
	require.Equal(t, workflow.TopicVerification, msg.Topic)
	require.Equal(t, "req-1", msg.RequestID)
	require.Equal(t, workflow.StatusApproved, msg.Status)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	err := bob.ReadJSON(&msg)
	require.Error(t, err)
}

func TestHubRespectsTopicSubscription(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "carol", workflow.TopicAssociation)

	hub.Publish(context.Background(), workflow.Event{Topic: workflow.TopicProfile, UserIDs: []string{"carol"}})
	hub.Publish(context.Background(), workflow.Event{Topic: workflow.TopicAssociation, RequestID: "a-1", UserIDs: []string{"carol"}})

	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, workflow.TopicAssociation, msg.Topic)
	require.Equal(t, "a-1", msg.RequestID)
}

func TestHubControlMessages(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "dave", workflow.TopicVerification)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Topics: []string{workflow.TopicProfile, "bogus"}}))
	require.Eventually(t, func() bool {
		return hub.Subscribers(workflow.TopicProfile, "dave") == 1
	}, time.Second, 10*time.Millisecond)
	require.Zero(t, hub.Subscribers("bogus", "dave"))

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))
	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "erin")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.Subscribers(workflow.TopicVerification, "erin") == 0
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), workflow.Event{Topic: workflow.TopicVerification, UserIDs: []string{"erin"}})
}

func TestHubEnqueueAfterUnregister(t *testing.T) {
	hub := NewHub(nil)
	client := newConnection(hub, nil, "frank")
	hub.subscribe(client, []string{workflow.TopicVerification})
	require.Equal(t, 1, hub.Subscribers(workflow.TopicVerification, "frank"))

	// eviction closes the channel while the read loop may still answer a ping
	hub.unregister(client)
	require.NotPanics(t, func() {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		hub.enqueue(client, Message{Event: "pong"})
	})
	require.NotPanics(t, func() { hub.unregister(client) })

	hub.subscribe(client, []string{workflow.TopicVerification})
	require.Zero(t, hub.Subscribers(workflow.TopicVerification, "frank"))
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"https://app.example.com"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve("frank", nil, w, r)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.org"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
