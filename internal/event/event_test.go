package event

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	ev := Event{Type: TypeFollow, UserKey: "u1"}
	if err := ev.Validate(); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}

	missingType := Event{UserKey: "u1"}
	if err := missingType.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for missing type, got %v", err)
	}

	missingKey := Event{Type: TypeCheer}
	if err := missingKey.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for missing userKey, got %v", err)
	}
}

func TestStampPreservesExistingTimestamp(t *testing.T) {
	ev := Event{Type: TypeCheer, UserKey: "u1", Timestamp: 42}
	ev.Stamp()
	if ev.Timestamp != 42 {
		t.Errorf("producer timestamp must not be overwritten, got %d", ev.Timestamp)
	}

	fresh := Event{Type: TypeCheer, UserKey: "u1"}
	fresh.Stamp()
	if fresh.Timestamp == 0 {
		t.Errorf("expected a timestamp to be assigned")
	}
}

func TestFrames(t *testing.T) {
	var m map[string]any

	if err := json.Unmarshal(ConnectedFrame("u1"), &m); err != nil {
		t.Fatalf("connected frame is not valid JSON: %v", err)
	}
	if m["type"] != FrameConnected || m["userKey"] != "u1" {
		t.Errorf("unexpected connected frame: %v", m)
	}

	ev := Event{Type: TypeSubscribe, UserKey: "u1", User: "alice", Tier: "1000", Timestamp: 1}
	if err := json.Unmarshal(NewEventFrame(ev), &m); err != nil {
		t.Fatalf("event frame is not valid JSON: %v", err)
	}
	if m["type"] != FrameNewEvent {
		t.Errorf("unexpected frame type: %v", m["type"])
	}
	payload := m["event"].(map[string]any)
	if payload["tier"] != "1000" || payload["user"] != "alice" {
		t.Errorf("unexpected event payload: %v", payload)
	}

	if err := json.Unmarshal(ClearFrame(), &m); err != nil {
		t.Fatalf("clear frame is not valid JSON: %v", err)
	}
	if m["type"] != FrameClearEvents {
		t.Errorf("unexpected clear frame: %v", m)
	}
}
