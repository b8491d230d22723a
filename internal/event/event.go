// Package event defines the normalized event record and the wire envelopes
// shared by the SSE and desktop transports.
package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Type identifies the kind of stream event. Producers must map every
// source-specific payload onto this closed set before ingestion.
type Type string

const (
	TypeCheer                  Type = "CHEER"
	TypeChannelPointRedemption Type = "CHANNEL_POINT_REDEMPTION"
	TypeFollow                 Type = "FOLLOW"
	TypeSubscribe              Type = "SUBSCRIBE"
	TypeCustomTest             Type = "CUSTOM_TEST"
)

// ErrInvalidEvent is returned when an event is missing its type or user key.
var ErrInvalidEvent = errors.New("event: missing type or userKey")

// Event is the normalized wire/queue unit. Immutable once created.
type Event struct {
	Type      Type   `json:"type"`
	UserKey   string `json:"userKey"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	User      string `json:"user,omitempty"`
	Bits      int    `json:"bits,omitempty"`
	Message   string `json:"message,omitempty"`
	Reward    string `json:"reward,omitempty"`
	Tier      string `json:"tier,omitempty"`
}

// Validate checks the fields every event must carry.
func (e *Event) Validate() error {
	if e.Type == "" || e.UserKey == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Stamp fills in the occurrence timestamp if the producer did not set one.
func (e *Event) Stamp() {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
}

// Envelope frame types pushed to subscribers.
const (
	FrameConnected   = "connected"
	FrameNewEvent    = "new_event"
	FrameClearEvents = "CLEAR_EVENTS"
)

// ConnectedFrame builds the acknowledgement frame sent when a subscriber
// connection is accepted.
func ConnectedFrame(userKey string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":    FrameConnected,
		"userKey": userKey,
	})
	return data
}

// NewEventFrame wraps a normalized event for delivery.
func NewEventFrame(ev Event) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":  FrameNewEvent,
		"event": ev,
	})
	return data
}

// ClearFrame builds the control frame broadcast after a buffer clear. It is
// never stored in the ring buffer.
func ClearFrame() []byte {
	data, _ := json.Marshal(map[string]any{
		"type": FrameClearEvents,
	})
	return data
}
