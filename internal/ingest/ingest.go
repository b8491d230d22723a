// Package ingest is the single entry point through which produced events
// reach the ring buffer and every live subscriber.
package ingest

import (
	"go.uber.org/zap"

	"github.com/overlaykit/relay/internal/buffer"
	"github.com/overlaykit/relay/internal/event"
	"github.com/overlaykit/relay/internal/registry"
)

// Ingestor normalizes producer input and performs the buffer append followed
// by the registry broadcast. The buffer update happens before the broadcast,
// so a subscriber that fetches the buffer on notification sees its own event.
type Ingestor struct {
	buffer   *buffer.Store
	registry *registry.Registry
	logger   *zap.Logger
}

// New creates an ingestor bound to the process-wide buffer and registry.
func New(buf *buffer.Store, reg *registry.Registry, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		buffer:   buf,
		registry: reg,
		logger:   logger,
	}
}

// Ingest validates an event, appends it to the buffer, then broadcasts it to
// every subscriber currently registered for its user key. Individual delivery
// failures never surface here; only malformed input returns an error.
func (i *Ingestor) Ingest(ev event.Event) (int, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	ev.Stamp()

	i.buffer.Append(ev.UserKey, ev)
	delivered := i.registry.Broadcast(ev.UserKey, event.NewEventFrame(ev))

	i.logger.Debug("event ingested",
		zap.String("userKey", ev.UserKey),
		zap.String("type", string(ev.Type)),
		zap.Int("delivered", delivered),
	)
	return delivered, nil
}

// ClearAndBroadcast empties the key's buffer and notifies current subscribers
// with a CLEAR_EVENTS control frame. The control frame bypasses the buffer.
func (i *Ingestor) ClearAndBroadcast(userKey string) {
	i.buffer.Clear(userKey)
	delivered := i.registry.Broadcast(userKey, event.ClearFrame())

	i.logger.Info("events cleared",
		zap.String("userKey", userKey),
		zap.Int("delivered", delivered),
	)
}
