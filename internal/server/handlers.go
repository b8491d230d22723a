package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/overlaykit/relay/internal/buffer"
	"github.com/overlaykit/relay/internal/desktop"
	"github.com/overlaykit/relay/internal/event"
	"github.com/overlaykit/relay/internal/ingest"
	"github.com/overlaykit/relay/internal/webhook"
)

// maxWebhookBody bounds the accepted EventSub payload size.
const maxWebhookBody = 1 << 20

// Server owns the REST and webhook handlers. All delivery side effects go
// through the ingestor; handlers never touch the registry directly.
type Server struct {
	ingestor *ingest.Ingestor
	buffer   *buffer.Store
	hub      *desktop.Hub
	verifier webhook.Verifier
	logger   *zap.Logger
}

// NewServer wires the handler set.
func NewServer(ing *ingest.Ingestor, buf *buffer.Store, hub *desktop.Hub, verifier webhook.Verifier, logger *zap.Logger) *Server {
	return &Server{
		ingestor: ing,
		buffer:   buf,
		hub:      hub,
		verifier: verifier,
		logger:   logger,
	}
}

// ListEvents serves the ring-buffer snapshot for a user key.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	events := s.buffer.List(userKey)

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// TriggerEvent ingests a manual or test event for a user key.
func (s *Server) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")

	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	ev.UserKey = userKey

	delivered, err := s.ingestor.Ingest(ev)
	if err != nil {
		if errors.Is(err, event.ErrInvalidEvent) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		s.logger.Error("ingest failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "ingest failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered})
}

// ClearEvents empties the buffer for a key and notifies subscribers.
func (s *Server) ClearEvents(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	s.ingestor.ClearAndBroadcast(userKey)

	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

// TriggerPunishment broadcasts a punishment command to authenticated desktop
// clients.
func (s *Server) TriggerPunishment(w http.ResponseWriter, r *http.Request) {
	var p desktop.Punishment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if p.ID == "" || p.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id and type are required"})
		return
	}

	s.hub.SendPunishment(p)
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

// EndPunishment broadcasts the symmetric end command.
func (s *Server) EndPunishment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.hub.SendPunishmentEnd(id)

	writeJSON(w, http.StatusOK, map[string]any{"status": "ended"})
}

// GetHealth reports liveness plus connection diagnostics.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"authenticatedDesktops": s.hub.CountAuthenticated(),
	})
}

// HandleWebhook is the EventSub ingress: verify, answer challenges, normalize
// notifications, and ingest.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}

	if err := s.verifier.Verify(r.Header, body); err != nil {
		s.logger.Warn("webhook signature rejected", zap.Error(err))
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "signature mismatch"})
		return
	}

	switch r.Header.Get(webhook.HeaderMessageType) {
	case webhook.MessageTypeVerification:
		challenge, err := webhook.Challenge(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid verification payload"})
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))

	case webhook.MessageTypeRevocation:
		s.logger.Warn("eventsub subscription revoked")
		w.WriteHeader(http.StatusNoContent)

	case webhook.MessageTypeNotification:
		ev, err := webhook.Normalize(body)
		if err != nil {
			if errors.Is(err, webhook.ErrUnsupportedSubscription) {
				// Acknowledge so the provider does not retry; nothing to fan out.
				s.logger.Warn("unsupported subscription type", zap.Error(err))
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid notification payload"})
			return
		}

		delivered, err := s.ingestor.Ingest(ev)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown message type"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
