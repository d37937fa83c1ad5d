// Package notifications pushes workflow invalidation events to connected
// clients over websockets so they refetch instead of polling.
package notifications

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/workflow"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10

	defaultBufferSize = 32
)

// Message is the frame delivered to subscribers.
type Message struct {
	Topic     string          `json:"topic,omitempty"`
	Event     string          `json:"event"`
	RequestID string          `json:"request_id,omitempty"`
	SubjectID string          `json:"subject_id,omitempty"`
	Status    workflow.Status `json:"status,omitempty"`
}

type controlMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Topics lists every topic a client may subscribe to.
var Topics = []string{workflow.TopicVerification, workflow.TopicAssociation, workflow.TopicProfile}

// Hub fans invalidation events out to the connections of their recipients.
// It implements workflow.Invalidator.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]map[*connection]struct{}
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a hub accepting websocket upgrades from allowedOrigins.
// Same-host and loopback origins are always accepted.
func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}

	return &Hub{
		subscriptions: make(map[string]map[string]map[*connection]struct{}),
		log:           logger.WithModule("notifications"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed[strings.ToLower(strings.TrimRight(origin, "/"))]; ok {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the request and subscribes the connection to topics. An
// empty list subscribes to every topic.
func (h *Hub) Serve(userID string, topics []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	if len(topics) == 0 {
		topics = Topics
	}

	client := newConnection(h, conn, userID)
	h.subscribe(client, topics)
	metrics.EventSubscribers.Inc()

	go client.writeLoop()
	client.readLoop()
}

// Publish delivers event to every connection of its recipients subscribed
// to the event topic.
func (h *Hub) Publish(_ context.Context, event workflow.Event) {
	topic := normalizeTopic(event.Topic)
	if topic == "" {
		return
	}

	message := Message{
		Topic:     topic,
		Event:     "invalidate",
		RequestID: event.RequestID,
		SubjectID: event.SubjectID,
		Status:    event.Status,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	byUser := h.subscriptions[topic]
	for _, userID := range uniqueValues(event.UserIDs) {
		for client := range byUser[userID] {
			h.enqueue(client, message)
		}
	}
}

// Subscribers reports how many connections the user has on topic.
func (h *Hub) Subscribers(topic, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeTopic(topic)][userID])
}

func (h *Hub) subscribe(client *connection, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	for _, topic := range uniqueValues(topics) {
		topic = normalizeTopic(topic)
		if !knownTopic(topic) {
			h.log.Debug("ignoring unknown topic", zap.String("topic", topic), zap.String("user_id", client.userID))
			continue
		}
		if _, exists := client.topics[topic]; exists {
			continue
		}
		if h.subscriptions[topic] == nil {
			h.subscriptions[topic] = make(map[string]map[*connection]struct{})
		}
		if h.subscriptions[topic][client.userID] == nil {
			h.subscriptions[topic][client.userID] = make(map[*connection]struct{})
		}
		client.topics[topic] = struct{}{}
		h.subscriptions[topic][client.userID][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range uniqueValues(topics) {
		h.removeLocked(client, normalizeTopic(topic))
	}
}

// unregister removes client and closes its send channel under the write
// lock. Callers of enqueue hold the read lock and see closed.
func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
	client.closed = true
	close(client.send)
}

func (h *Hub) removeLocked(client *connection, topic string) {
	delete(client.topics, topic)

	byUser, ok := h.subscriptions[topic]
	if !ok {
		return
	}
	clients := byUser[client.userID]
	delete(clients, client)
	if len(clients) == 0 {
		delete(byUser, client.userID)
	}
	if len(byUser) == 0 {
		delete(h.subscriptions, topic)
	}
}

// enqueue never blocks; a client that cannot keep up is disconnected and
// will refetch on reconnect. The caller holds h.mu.
func (h *Hub) enqueue(client *connection, message Message) {
	if client.closed {
		return
	}
	select {
	case client.send <- message:
	default:
		h.log.Warn("dropping slow subscriber", zap.String("user_id", client.userID))
		go client.close()
	}
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	topics map[string]struct{}
	send   chan Message
	once   sync.Once

	// closed is guarded by hub.mu.
	closed bool
}

func newConnection(hub *Hub, conn *websocket.Conn, userID string) *connection {
	return &connection{
		hub:    hub,
		socket: conn,
		userID: userID,
		topics: make(map[string]struct{}),
		send:   make(chan Message, defaultBufferSize),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Topics)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Topics)
		case "ping":
			c.hub.mu.RLock()
			c.hub.enqueue(c, Message{Event: "pong"})
			c.hub.mu.RUnlock()
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		metrics.EventSubscribers.Dec()
		_ = c.socket.Close()
	})
}

func knownTopic(topic string) bool {
	for _, known := range Topics {
		if topic == known {
			return true
		}
	}
	return false
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		if parsed, err := url.Parse(host); err == nil {
			host = parsed.Host
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

func uniqueValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
