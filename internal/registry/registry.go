// Package registry tracks live delivery endpoints keyed by user identity and
// fans messages out to them.
package registry

import (
	"sync"

	"go.uber.org/zap"
)

// Sink is the writable side of one live connection. Implementations must be
// safe for concurrent Send calls and must return an error once the underlying
// transport is no longer writable.
type Sink interface {
	Send(payload []byte) error
}

type connection struct {
	id   string
	sink Sink
}

// Registry maps user keys to their live connections. A connection belongs to
// exactly one key; stale connections are dropped lazily on the next failed
// write rather than proactively polled.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[string]*connection // userKey -> connectionId -> connection
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]map[string]*connection),
		logger: logger,
	}
}

// Register adds a connection under a user key. Registering an id that is
// already present is a no-op.
func (r *Registry) Register(userKey, connectionID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userKey]
	if set == nil {
		set = make(map[string]*connection)
		r.conns[userKey] = set
	}
	if _, ok := set[connectionID]; ok {
		return
	}
	set[connectionID] = &connection{id: connectionID, sink: sink}

	r.logger.Debug("connection registered",
		zap.String("userKey", userKey),
		zap.String("connID", connectionID),
	)
}

// Unregister removes a connection. Removing an unknown id is a no-op. The
// key's set is deleted once it empties so no dangling collections remain.
func (r *Registry) Unregister(userKey, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(userKey, connectionID)
}

func (r *Registry) removeLocked(userKey, connectionID string) {
	set, ok := r.conns[userKey]
	if !ok {
		return
	}
	if _, ok := set[connectionID]; !ok {
		return
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.conns, userKey)
	}

	r.logger.Debug("connection unregistered",
		zap.String("userKey", userKey),
		zap.String("connID", connectionID),
	)
}

// Broadcast writes payload to every live connection under the key and returns
// the number of successful deliveries. A failing connection is removed as a
// side effect and delivery continues to the rest.
func (r *Registry) Broadcast(userKey string, payload []byte) int {
	r.mu.RLock()
	set := r.conns[userKey]
	// Copy to a stable snapshot so a connection removing itself mid-broadcast
	// does not corrupt the iteration.
	snapshot := make([]*connection, 0, len(set))
	for _, c := range set {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range snapshot {
		if err := c.sink.Send(payload); err != nil {
			r.logger.Debug("dropping unwritable connection",
				zap.String("userKey", userKey),
				zap.String("connID", c.id),
				zap.Error(err),
			)
			r.mu.Lock()
			r.removeLocked(userKey, c.id)
			r.mu.Unlock()
			continue
		}
		delivered++
	}
	return delivered
}

// Count reports the number of live connections for a key. Diagnostics only.
func (r *Registry) Count(userKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userKey])
}
