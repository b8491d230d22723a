package buffer

import (
	"fmt"
	"testing"

	"github.com/overlaykit/relay/internal/event"
)

func TestAppendAndList(t *testing.T) {
	s := NewStore(50)

	s.Append("u1", event.Event{Type: event.TypeFollow, UserKey: "u1", User: "alice"})
	s.Append("u1", event.Event{Type: event.TypeCheer, UserKey: "u1", User: "bob", Bits: 100})

	events := s.List("u1")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first
	if events[0].Type != event.TypeCheer {
		t.Errorf("expected newest event at head, got %s", events[0].Type)
	}
	if events[1].User != "alice" {
		t.Errorf("expected oldest event at tail, got %s", events[1].User)
	}
}

func TestCapacityEviction(t *testing.T) {
	s := NewStore(50)

	for i := 1; i <= 51; i++ {
		s.Append("u1", event.Event{
			Type:    event.TypeCustomTest,
			UserKey: "u1",
			User:    fmt.Sprintf("user-%d", i),
		})
	}

	events := s.List("u1")
	if len(events) != 50 {
		t.Fatalf("expected exactly 50 events, got %d", len(events))
	}
	if events[0].User != "user-51" {
		t.Errorf("most recent event should be at the head, got %s", events[0].User)
	}
	for _, ev := range events {
		if ev.User == "user-1" {
			t.Errorf("oldest event should have been evicted")
		}
	}
}

func TestClearSingleKey(t *testing.T) {
	s := NewStore(50)

	s.Append("u1", event.Event{Type: event.TypeFollow, UserKey: "u1"})
	s.Append("u2", event.Event{Type: event.TypeFollow, UserKey: "u2"})

	s.Clear("u1")

	if got := s.Len("u1"); got != 0 {
		t.Errorf("expected u1 cleared, got %d entries", got)
	}
	if got := s.Len("u2"); got != 1 {
		t.Errorf("clear must not touch other keys, u2 has %d entries", got)
	}
}

func TestListIsSnapshot(t *testing.T) {
	s := NewStore(50)

	s.Append("u1", event.Event{Type: event.TypeFollow, UserKey: "u1", User: "alice"})
	snapshot := s.List("u1")

	s.Append("u1", event.Event{Type: event.TypeCheer, UserKey: "u1", User: "bob"})
	s.Clear("u1")

	if len(snapshot) != 1 || snapshot[0].User != "alice" {
		t.Errorf("snapshot must not observe later mutation")
	}
}

func TestUnknownKeyEmpty(t *testing.T) {
	s := NewStore(50)
	if events := s.List("nobody"); len(events) != 0 {
		t.Errorf("expected empty list for unknown key, got %d", len(events))
	}
}
