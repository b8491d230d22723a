package ingest

import (
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/overlaykit/relay/internal/buffer"
	"github.com/overlaykit/relay/internal/event"
	"github.com/overlaykit/relay/internal/registry"
)

type recordingSink struct {
	frames [][]byte
}

func (r *recordingSink) Send(payload []byte) error {
	r.frames = append(r.frames, payload)
	return nil
}

func decodeFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	return m
}

func newPipeline(t *testing.T) (*Ingestor, *buffer.Store, *registry.Registry) {
	t.Helper()
	logger := zap.NewNop()
	buf := buffer.NewStore(50)
	reg := registry.New(logger)
	return New(buf, reg, logger), buf, reg
}

func TestIngestRejectsMalformedInput(t *testing.T) {
	ing, buf, _ := newPipeline(t)

	_, err := ing.Ingest(event.Event{UserKey: "u1"}) // missing type
	if !errors.Is(err, event.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for missing type, got %v", err)
	}

	_, err = ing.Ingest(event.Event{Type: event.TypeFollow}) // missing userKey
	if !errors.Is(err, event.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for missing userKey, got %v", err)
	}

	if buf.Len("u1") != 0 {
		t.Errorf("rejected events must not reach the buffer")
	}
}

func TestIngestOrdering(t *testing.T) {
	ing, _, reg := newPipeline(t)

	sink := &recordingSink{}
	reg.Register("u1", "c1", sink)

	for _, user := range []string{"e1", "e2", "e3"} {
		if _, err := ing.Ingest(event.Event{Type: event.TypeFollow, UserKey: "u1", User: user}); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
	}

	if len(sink.frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(sink.frames))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		frame := decodeFrame(t, sink.frames[i])
		ev := frame["event"].(map[string]any)
		if ev["user"] != want {
			t.Errorf("frame %d: expected user %s, got %v", i, want, ev["user"])
		}
	}
}

func TestIngestBufferBeforeBroadcast(t *testing.T) {
	ing, buf, reg := newPipeline(t)

	// A sink that inspects the buffer at delivery time must see the event it
	// is being notified about.
	seen := 0
	reg.Register("u1", "c1", sinkFunc(func(payload []byte) error {
		seen = buf.Len("u1")
		return nil
	}))

	if _, err := ing.Ingest(event.Event{Type: event.TypeFollow, UserKey: "u1"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if seen != 1 {
		t.Errorf("buffer append must happen before broadcast, saw %d entries", seen)
	}
}

type sinkFunc func([]byte) error

func (f sinkFunc) Send(p []byte) error { return f(p) }

func TestIngestStampsTimestamp(t *testing.T) {
	ing, buf, _ := newPipeline(t)

	if _, err := ing.Ingest(event.Event{Type: event.TypeFollow, UserKey: "u1"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	events := buf.List("u1")
	if len(events) != 1 || events[0].Timestamp == 0 {
		t.Errorf("ingest should stamp a missing timestamp")
	}
}

// End-to-end scenario: ingest with no subscribers, then subscribe, list, and
// clear.
func TestFollowScenario(t *testing.T) {
	ing, buf, reg := newPipeline(t)

	delivered, err := ing.Ingest(event.Event{Type: event.TypeFollow, UserKey: "u1", User: "alice"})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("expected 0 deliveries with no subscribers, got %d", delivered)
	}
	if buf.Len("u1") != 1 {
		t.Fatalf("expected 1 buffered event, got %d", buf.Len("u1"))
	}

	sink := &recordingSink{}
	reg.Register("u1", "c1", sink)

	events := buf.List("u1")
	if events[0].Type != event.TypeFollow || events[0].User != "alice" {
		t.Errorf("unexpected buffered event: %+v", events[0])
	}

	ing.ClearAndBroadcast("u1")

	if buf.Len("u1") != 0 {
		t.Errorf("buffer should be empty after clear")
	}
	if len(sink.frames) != 1 {
		t.Fatalf("subscriber should receive exactly the clear frame, got %d frames", len(sink.frames))
	}
	frame := decodeFrame(t, sink.frames[0])
	if frame["type"] != event.FrameClearEvents {
		t.Errorf("expected %s frame, got %v", event.FrameClearEvents, frame["type"])
	}
}
