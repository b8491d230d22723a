// Package desktop implements the persistent socket transport for desktop
// companion clients: authentication, heartbeats, and punishment delivery.
package desktop

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/overlaykit/relay/internal/registry"
)

// DefaultPingInterval is the application-level heartbeat period.
const DefaultPingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub manages desktop companion connections. Authenticated connections are
// also registered in the shared connection registry so they receive the same
// event stream as SSE subscribers.
type Hub struct {
	registry     *registry.Registry
	validator    TokenValidator
	pingInterval time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

// NewHub creates a desktop hub. A nil validator falls back to the permissive
// StaticValidator; a non-positive interval falls back to DefaultPingInterval.
func NewHub(reg *registry.Registry, validator TokenValidator, pingInterval time.Duration, logger *zap.Logger) *Hub {
	if validator == nil {
		validator = StaticValidator{}
	}
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Hub{
		registry:     reg,
		validator:    validator,
		pingInterval: pingInterval,
		logger:       logger,
		conns:        make(map[string]*Conn),
	}
}

// HandleWS upgrades an HTTP request at the streamer-events path. The
// connection enters unauthenticated; a valid token query parameter
// transitions it immediately.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("desktop upgrade failed", zap.Error(err))
		return
	}

	c := &Conn{
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.New().String(),
		logger: h.logger,
	}
	c.createdAt = time.Now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.conns[c.connID] = c
	h.mu.Unlock()

	if err := h.authenticate(c, token); err != nil {
		_ = c.Send(buildAuthRequired("missing or invalid token"))
		h.logger.Info("desktop client connected unauthenticated",
			zap.String("connID", c.connID),
			zap.String("remoteAddr", r.RemoteAddr),
		)
	} else {
		_ = c.Send(buildAuthSuccess("authenticated"))
		h.logger.Info("desktop client connected",
			zap.String("connID", c.connID),
			zap.String("userKey", c.UserKey()),
			zap.String("remoteAddr", r.RemoteAddr),
		)
	}

	go c.writePump()
	go c.readPump()
}

// authenticate validates a token and, on success, transitions the connection
// to authenticated and registers it for event delivery under its user key.
func (h *Hub) authenticate(c *Conn, token string) error {
	userKey, err := h.validator.Validate(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.authenticated = true
	c.userKey = userKey
	c.mu.Unlock()

	h.registry.Register(userKey, c.connID, c)
	return nil
}

// remove drops a connection from the managed set and the registry. Idempotent.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.connID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.connID)
	close(c.send)
	h.mu.Unlock()

	if key := c.UserKey(); key != "" {
		h.registry.Unregister(key, c.connID)
	}

	h.logger.Info("desktop client disconnected",
		zap.String("connID", c.connID),
		zap.Duration("connectedFor", time.Since(c.createdAt)),
	)
}

// Run pushes the application heartbeat until the context is cancelled, then
// closes every tracked connection. Call in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

func (h *Hub) pingAll() {
	for _, c := range h.snapshot(false) {
		if err := c.Send(buildPing()); err != nil {
			h.logger.Debug("heartbeat send failed",
				zap.String("connID", c.connID),
				zap.Error(err),
			)
			h.remove(c)
		}
	}
}

// SendPunishment broadcasts a punishment command to every authenticated
// connection, process-wide. A failing connection is dropped and delivery
// continues to the rest.
func (h *Hub) SendPunishment(p Punishment) {
	h.broadcastAuthenticated(buildPunishment(p))
	h.logger.Info("punishment sent",
		zap.String("id", p.ID),
		zap.String("punishment", p.Type),
		zap.Int64("durationMs", p.DurationMs),
		zap.Int("authenticated", h.CountAuthenticated()),
	)
}

// SendPunishmentEnd broadcasts the symmetric end-of-punishment command.
func (h *Hub) SendPunishmentEnd(id string) {
	h.broadcastAuthenticated(buildPunishmentEnd(id))
	h.logger.Info("punishment ended", zap.String("id", id))
}

func (h *Hub) broadcastAuthenticated(payload []byte) {
	for _, c := range h.snapshot(true) {
		if err := c.Send(payload); err != nil {
			h.logger.Debug("desktop broadcast send failed",
				zap.String("connID", c.connID),
				zap.Error(err),
			)
			h.remove(c)
		}
	}
}

// snapshot copies the connection set so broadcasts never iterate a map that
// a disconnecting client is mutating.
func (h *Hub) snapshot(authenticatedOnly bool) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if authenticatedOnly && !c.Authenticated() {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

// CountAuthenticated reports authenticated connections. Diagnostics only.
func (h *Hub) CountAuthenticated() int {
	return len(h.snapshot(true))
}

// Close tears down every connection with a normal closure and empties the
// set. Irreversible and idempotent; new connections are refused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		close(c.send)
		if key := c.UserKey(); key != "" {
			h.registry.Unregister(key, c.connID)
		}
	}

	h.logger.Info("desktop hub closed", zap.Int("connections", len(conns)))
}
