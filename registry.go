package halyard

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type addressedMessage struct {
	connectionID string
	text         string
	relayed      bool
}

// Registry is the server's table of live connections, keyed by connection
// id. Sessions insert themselves when they start and remove themselves when
// they end. Addressed sends go through the registry's queue and are
// delivered one at a time by a single dispatch goroutine, so senders never
// hold a reference to another session.
type Registry struct {
	mu sync.Mutex

	id          string
	connections map[string]*queue[string]
	addressed   *queue[addressedMessage]
	relay       Relay

	logger  *slog.Logger
	metrics *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		id:          uuid.NewString(),
		connections: map[string]*queue[string]{},
		addressed:   newQueue[addressedMessage](),
		logger:      slog.Default(),
	}
}

// ID returns the registry's own id, used to bind it to a relay.
func (r *Registry) ID() string {
	return r.id
}

// SetRelay binds the registry to a relay, unbinding it from any previous one.
func (r *Registry) SetRelay(relay Relay) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.relay != nil {
		if err := r.relay.UnbindDispatch(r.id); err != nil {
			return err
		}
		r.relay = nil
	}
	if relay == nil {
		return nil
	}

	if err := relay.BindDispatch(r.id, r.handleRelayed); err != nil {
		return err
	}
	r.relay = relay
	return nil
}

// Has reports whether a connection with the given id is live on this
// registry.
func (r *Registry) Has(connectionID string) bool {
	_, ok := r.lookup(connectionID)
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

// IDs returns the ids of the live connections in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// SendTo queues text for the connection with the given id. If the id is
// unknown when the message is dispatched, the message is dropped silently.
func (r *Registry) SendTo(connectionID string, text string) {
	r.addressed.Push(addressedMessage{connectionID: connectionID, text: text})
}

// Run drains the addressed queue until ctx is done. The server starts it;
// a standalone registry needs it running for SendTo to deliver.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.addressed.Ready():
			for _, msg := range r.addressed.PopAll() {
				r.deliver(msg)
			}
		}
	}
}

// Close unbinds the registry from its relay.
func (r *Registry) Close() error {
	return r.SetRelay(nil)
}

func (r *Registry) attach(logger *slog.Logger, metrics *Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger != nil {
		r.logger = logger
	}
	r.metrics = metrics
}

func (r *Registry) insert(connectionID string, outbound *queue[string]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[connectionID] = outbound
}

func (r *Registry) remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, connectionID)
}

func (r *Registry) lookup(connectionID string) (*queue[string], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outbound, ok := r.connections[connectionID]
	return outbound, ok
}

func (r *Registry) deliver(msg addressedMessage) {
	if outbound, ok := r.lookup(msg.connectionID); ok && outbound.Push(msg.text) {
		r.metrics.addressedDelivered()
		return
	}

	r.mu.Lock()
	relay := r.relay
	logger := r.logger
	r.mu.Unlock()

	if relay != nil && !msg.relayed {
		if err := relay.Dispatch(msg.connectionID, msg.text); err != nil {
			logger.Warn("failed to relay addressed message",
				slog.String("connection_id", msg.connectionID),
				slog.String("error", err.Error()))
			return
		}
		r.metrics.addressedRelayed()
		return
	}

	if msg.relayed {
		return
	}

	logger.Debug("addressed message dropped for unknown connection",
		slog.String("connection_id", msg.connectionID))
	r.metrics.addressedMissed()
}

// handleRelayed queues a message that arrived from the relay. It goes
// through the same serial queue as local sends.
func (r *Registry) handleRelayed(connectionID string, text string) {
	r.addressed.Push(addressedMessage{connectionID: connectionID, text: text, relayed: true})
}
