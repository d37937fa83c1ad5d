package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackPath is where the backend sends the browser after sign-in when
// the frontend origin points at the loopback listener.
const CallbackPath = "/auth/callback"

// LoopbackConfig configures a Loopback listener.
type LoopbackConfig struct {
	// Addr defaults to 127.0.0.1:0.
	Addr string
	// Page is the HTML served at CallbackPath.
	Page []byte
	// ExtraOrigins are trusted in addition to the listener's own origin.
	ExtraOrigins []string
	Logger       *zap.Logger
}

// Loopback plays the frontend callback page for a CLI: it serves the relay
// page, turns relayed URL parts into Signals and feeds popup messages into
// a MessageChannel.
type Loopback struct {
	listener net.Listener
	server   *http.Server
	origin   string
	page     []byte
	signals  chan Signals
	messages *MessageChannel
	log      *zap.Logger
}

type relayRequest struct {
	Fragment string `json:"fragment"`
	Query    string `json:"query"`
}

// NewLoopback binds the listener. Call Start to serve.
func NewLoopback(cfg LoopbackConfig) (*Loopback, error) {
	if len(cfg.Page) == 0 {
		return nil, errors.New("reconciler: callback page is required")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("reconciler: listen on %s: %w", addr, err)
	}

	origin := "http://" + listener.Addr().String()
	l := &Loopback{
		listener: listener,
		origin:   origin,
		page:     cfg.Page,
		signals:  make(chan Signals, 1),
		messages: NewMessageChannel(append([]string{origin}, cfg.ExtraOrigins...), 4, log),
		log:      log.With(zap.String("component", "loopback")),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(CallbackPath, l.servePage)
	router.POST("/auth/relay", l.relay)
	router.POST("/auth/message", l.message)

	l.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return l, nil
}

// Start serves in the background until Shutdown.
func (l *Loopback) Start() {
	go func() {
		if err := l.server.Serve(l.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("loopback listener stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener.
func (l *Loopback) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}

// Origin is the listener's own origin, trusted for popup messages.
func (l *Loopback) Origin() string {
	return l.origin
}

// CallbackURL is the page the browser should be sent back to.
func (l *Loopback) CallbackURL() string {
	return l.origin + CallbackPath
}

// Signals yields the URL parts relayed by the callback page.
func (l *Loopback) Signals() <-chan Signals {
	return l.signals
}

// Messages is the channel popup messages are delivered to.
func (l *Loopback) Messages() *MessageChannel {
	return l.messages
}

func (l *Loopback) servePage(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Referrer-Policy", "no-referrer")
	c.Data(http.StatusOK, "text/html; charset=utf-8", l.page)
}

func (l *Loopback) relay(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" && !l.messages.Trusted(origin) {
		l.log.Warn("rejecting relay", zap.String("reason", ReasonUntrustedOrigin), zap.String("origin", origin))
		c.JSON(http.StatusForbidden, gin.H{"error": ReasonUntrustedOrigin})
		return
	}

	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid relay payload"})
		return
	}
	query, err := url.ParseQuery(req.Query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	select {
	case l.signals <- Signals{Fragment: req.Fragment, Query: query}:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "callback already received"})
	}
}

func (l *Loopback) message(c *gin.Context) {
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		return
	}

	err := l.messages.Deliver(c.Request.Context(), c.GetHeader("Origin"), msg)
	switch {
	case errors.Is(err, ErrUntrustedOrigin):
		c.JSON(http.StatusForbidden, gin.H{"error": ReasonUntrustedOrigin})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
