// Package sse implements the browser-facing Server-Sent Events transport.
package sse

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overlaykit/relay/internal/event"
	"github.com/overlaykit/relay/internal/registry"
)

// DefaultSendBuffer is the per-client outbound channel size.
const DefaultSendBuffer = 32

// errSlowClient marks a subscriber whose outbound channel is full. The
// registry removes it on the next broadcast attempt.
var errSlowClient = errors.New("sse: client send buffer full")

// client is one live SSE stream. It satisfies registry.Sink; Send never
// blocks the broadcaster.
type client struct {
	connID string
	sendCh chan []byte
	doneCh chan struct{}
}

func (c *client) Send(payload []byte) error {
	select {
	case <-c.doneCh:
		return errors.New("sse: client closed")
	case c.sendCh <- payload:
		return nil
	default:
		return errSlowClient
	}
}

// Handler accepts SSE subscriptions at GET /sse/{userKey}. The user key is
// taken from the path; authorization, where required, happens in front of
// this handler.
type Handler struct {
	registry   *registry.Registry
	sendBuffer int
	logger     *zap.Logger
}

// NewHandler creates the SSE handler.
func NewHandler(reg *registry.Registry, sendBuffer int, logger *zap.Logger) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Handler{
		registry:   reg,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// ServeHTTP upgrades the response to an event stream, registers the
// connection, writes the connected frame, and pumps broadcast payloads until
// the client goes away. Unregistration is guaranteed on every exit path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	if userKey == "" {
		http.Error(w, "missing userKey", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	c := &client{
		connID: uuid.New().String(),
		sendCh: make(chan []byte, h.sendBuffer),
		doneCh: make(chan struct{}),
	}

	h.registry.Register(userKey, c.connID, c)
	defer func() {
		close(c.doneCh)
		h.registry.Unregister(userKey, c.connID)
	}()

	h.logger.Info("sse client connected",
		zap.String("userKey", userKey),
		zap.String("connID", c.connID),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	if err := writeFrame(w, flusher, event.ConnectedFrame(userKey)); err != nil {
		h.logger.Debug("failed to write connected frame", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("sse client disconnected",
				zap.String("userKey", userKey),
				zap.String("connID", c.connID),
			)
			return
		case payload := <-c.sendCh:
			if err := writeFrame(w, flusher, payload); err != nil {
				h.logger.Debug("sse write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// writeFrame emits one complete data frame. Every frame is a single JSON
// object; no partial frames are ever exposed to the receiver.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
