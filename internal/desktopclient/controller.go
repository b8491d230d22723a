// Package desktopclient implements the companion-side connection controller:
// it establishes the desktop socket, answers heartbeats, surfaces punishment
// commands, and reconnects with bounded backoff after unexpected closes.
package desktopclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Handshake budget for a single connect attempt.
	connectTimeout = 10 * time.Second

	// Retry budget before the controller gives up and returns to idle.
	maxRetryAttempts = 10

	// Base unit of the linear backoff: min(attempt, 5) * retryDelayStep.
	retryDelayStep = 5 * time.Second

	eventBufferSize = 32
)

// ErrAlreadyConnecting is returned when Connect is called while a connection
// attempt or live connection exists.
var ErrAlreadyConnecting = errors.New("desktopclient: already connecting or connected")

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags events surfaced to the embedding application.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventPunishment
)

// Punishment carries a punishment command received from the server.
type Punishment struct {
	ID          string `json:"id"`
	Type        string `json:"punishment"`
	DurationMs  int64  `json:"durationMs"`
	TriggeredBy string `json:"triggeredBy"`
}

// Event is one occurrence surfaced to the embedding application. Timestamp
// is assigned locally and is monotonically increasing; server-sent
// timestamps are not trusted as ordering keys.
type Event struct {
	Kind       EventKind
	Punishment Punishment
	Timestamp  int64
}

// wsConn is the subset of *websocket.Conn the controller uses. Narrowed so
// tests can feed the state machine without a socket.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// dialer establishes a connection. The default wraps websocket.DefaultDialer.
type dialer func(ctx context.Context, endpoint string, header http.Header) (wsConn, error)

// timer is the cancellable handle for a scheduled reconnect.
type timer interface {
	Stop() bool
}

// Controller is the desktop reconnection state machine. One controller
// manages at most one live socket.
type Controller struct {
	endpoint string
	token    string
	version  string
	logger   *zap.Logger

	dial      dialer
	afterFunc func(d time.Duration, f func()) timer
	events    chan Event

	mu       sync.Mutex
	state    State
	conn     wsConn
	attempts int
	retry    timer
	lastTS   int64
}

// New creates an idle controller for the given endpoint and token.
func New(endpoint, token, version string, logger *zap.Logger) *Controller {
	return &Controller{
		endpoint: endpoint,
		token:    token,
		version:  version,
		logger:   logger,
		dial:     gorillaDial,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		events: make(chan Event, eventBufferSize),
	}
}

func gorillaDial(ctx context.Context, endpoint string, header http.Header) (wsConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Events delivers controller events to the embedding application.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State reports the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the socket. It returns once the connection is open or
// the handshake fails, and rejects immediately if a connection attempt or
// live connection already exists. A failure here is the caller's to handle;
// automatic backoff applies only to post-connection failures.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnecting
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.establish(ctx); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return err
	}
	return nil
}

// establish performs one dial attempt and, on success, transitions to
// connected, identifies, and starts the read loop.
func (c *Controller) establish(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, c.endpointURL(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}

	identify, _ := json.Marshal(map[string]any{
		"type":       "identify",
		"clientType": "desktop",
		"version":    c.version,
	})
	if err := conn.WriteMessage(websocket.TextMessage, identify); err != nil {
		conn.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("desktop socket connected", zap.String("endpoint", c.endpoint))
	c.emit(Event{Kind: EventConnected})

	go c.readLoop(conn)
	return nil
}

func (c *Controller) endpointURL() string {
	return c.endpoint + "?token=" + c.token
}

// readLoop consumes frames until the socket dies, then routes the failure
// into the reconnect path.
func (c *Controller) readLoop(conn wsConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(conn, err)
			return
		}
		c.handleFrame(conn, data)
	}
}

// handleFrame dispatches one server frame.
func (c *Controller) handleFrame(conn wsConn, data []byte) {
	var msg struct {
		Type        string `json:"type"`
		ID          string `json:"id"`
		Punishment  string `json:"punishment"`
		DurationMs  int64  `json:"durationMs"`
		TriggeredBy string `json:"triggeredBy"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("unparseable server frame", zap.Error(err))
		return
	}

	switch msg.Type {
	case "ping":
		pong, _ := json.Marshal(map[string]any{"type": "pong"})
		if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
			c.logger.Debug("pong write failed", zap.Error(err))
		}

	case "punishment":
		c.emit(Event{
			Kind: EventPunishment,
			Punishment: Punishment{
				ID:          msg.ID,
				Type:        msg.Punishment,
				DurationMs:  msg.DurationMs,
				TriggeredBy: msg.TriggeredBy,
			},
			Timestamp: c.nextTimestamp(),
		})

	case "punishment_end":
		c.logger.Info("punishment ended", zap.String("id", msg.ID))

	case "auth_required":
		c.logger.Warn("server requires authentication", zap.String("message", msg.Message))

	case "auth_success", "identify_ack", "pong":
		c.logger.Debug("server frame", zap.String("type", msg.Type))

	case "error":
		c.logger.Warn("server error frame", zap.String("message", msg.Message))
	}
}

// handleClosed runs when the socket dies. An intentional local disconnect
// (normal closure) suppresses the retry path.
func (c *Controller) handleClosed(conn wsConn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Already replaced or torn down by Disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	conn.Close()
	c.emit(Event{Kind: EventDisconnected})

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		c.logger.Info("desktop socket closed normally")
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return
	}

	c.logger.Warn("desktop socket lost", zap.Error(err))
	c.mu.Lock()
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// scheduleReconnectLocked arms the retry timer with a linearly increasing
// delay, min(attempt, 5) * 5s, until the budget is exhausted. Caller holds mu.
func (c *Controller) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > maxRetryAttempts {
		c.logger.Error("reconnect budget exhausted, staying idle",
			zap.Int("attempts", c.attempts-1),
		)
		c.state = StateIdle
		c.attempts = 0
		return
	}

	delay := RetryDelay(c.attempts)
	c.logger.Info("scheduling reconnect",
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", delay),
	)
	c.retry = c.afterFunc(delay, c.reconnect)
}

// RetryDelay computes the backoff for a 1-based attempt number.
func RetryDelay(attempt int) time.Duration {
	step := attempt
	if step > 5 {
		step = 5
	}
	return time.Duration(step) * retryDelayStep
}

// reconnect re-enters the connecting state from a scheduled retry.
func (c *Controller) reconnect() {
	c.mu.Lock()
	if c.state != StateClosed {
		// Disconnect was called while the timer was pending.
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.retry = nil
	c.mu.Unlock()

	if err := c.establish(context.Background()); err != nil {
		c.logger.Warn("reconnect attempt failed", zap.Error(err))
		c.mu.Lock()
		c.state = StateClosed
		c.scheduleReconnectLocked()
		c.mu.Unlock()
	}
}

// Disconnect cancels any pending retry, closes the socket with a normal
// closure, and resets to idle. This is the only path that suppresses
// auto-reconnect.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.attempts = 0
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
		c.emit(Event{Kind: EventDisconnected})
	}

	c.logger.Info("desktop socket disconnected")
}

// nextTimestamp returns a locally monotonic millisecond timestamp.
func (c *Controller) nextTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

// emit delivers an event without ever blocking the socket goroutine.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping",
			zap.Int("kind", int(ev.Kind)),
		)
	}
}
