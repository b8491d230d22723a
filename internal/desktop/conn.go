package desktop

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next transport pong from the peer.
	pongWait = 60 * time.Second

	// Transport-level pings, below the application heartbeat. Must be less
	// than pongWait.
	transportPingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Send buffer size per connection.
	sendBufferSize = 64
)

var errSendBufferFull = errors.New("desktop: connection send buffer full")

// Conn is one desktop companion connection. It enters unauthenticated and is
// excluded from punishment broadcasts until a token validates.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	send   chan []byte
	connID string
	logger *zap.Logger

	mu            sync.Mutex
	authenticated bool
	userKey       string
	createdAt     time.Time
}

// Send queues a payload for delivery. It never blocks; a full buffer is
// reported as an error so the caller can drop the connection.
func (c *Conn) Send(payload []byte) error {
	defer func() {
		// Sending on a closed channel after teardown must not take the
		// broadcaster down with it.
		_ = recover()
	}()
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// Authenticated reports whether the connection has presented a valid token.
func (c *Conn) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// UserKey returns the user key the connection is bound to, empty while
// unauthenticated.
func (c *Conn) UserKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userKey
}

// readPump reads frames from the socket until it closes, then removes the
// connection from the hub.
func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("desktop read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump drains the send channel onto the socket and keeps the transport
// alive with protocol-level pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(transportPingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("desktop write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one inbound frame and dispatches it.
func (c *Conn) handleMessage(data []byte) {
	cmd, err := parseCommand(data)
	if err != nil {
		c.logger.Debug("failed to parse desktop command",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		_ = c.Send(buildError("unrecognized command"))
		return
	}
	c.handleCommand(cmd)
}

// handleCommand runs the per-connection state machine. Separated from the
// socket read path so it can be exercised by feeding commands directly.
func (c *Conn) handleCommand(cmd any) {
	switch m := cmd.(type) {
	case *identifyRequest:
		c.logger.Info("desktop client identified",
			zap.String("connID", c.connID),
			zap.String("clientType", m.clientType),
			zap.String("version", m.version),
		)
		if m.token != "" && !c.Authenticated() {
			if err := c.hub.authenticate(c, m.token); err != nil {
				_ = c.Send(buildAuthRequired("token rejected"))
				return
			}
			_ = c.Send(buildAuthSuccess("authenticated"))
		}
		_ = c.Send(buildIdentifyAck(c.connID))

	case *pingRequest:
		_ = c.Send(buildPong())

	case *pongReply:
		// Heartbeat acknowledgement. Monitoring signal only; missed pongs do
		// not force a close, transport read deadlines handle dead peers.
		c.logger.Debug("desktop pong", zap.String("connID", c.connID))
	}
}
