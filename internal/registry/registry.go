// Package registry implements the Callback Registry: the in-memory set of
// subscribers that every decoded envelope is fanned out to.
//
// A Registry is owned by the session that created it and injected into the
// connection manager and consumer views. It holds no business state.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/metrics"
)

// ErrCallbackPanic wraps a panic recovered from a subscriber.
var ErrCallbackPanic = errors.New("subscriber callback panicked")

// SubscriptionID is the opaque handle returned by Subscribe.
type SubscriptionID string

// Callback receives every dispatched envelope.
type Callback func(events.Envelope)

type entry struct {
	id SubscriptionID
	cb Callback
}

// Registry maps subscription ids to callbacks.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[SubscriptionID]Callback
}

// New creates an empty registry. m may be nil.
func New(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		metrics: m,
		subs:    make(map[SubscriptionID]Callback),
	}
}

// Subscribe registers cb and returns its id. A nil callback is accepted and
// never invoked, so the caller still gets an id to unsubscribe.
func (r *Registry) Subscribe(cb Callback) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	r.mu.Lock()
	r.subs[id] = cb
	n := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
	return id
}

// Unsubscribe removes id. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id SubscriptionID) {
	r.mu.Lock()
	delete(r.subs, id)
	n := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
}

// Clear drops every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	dropped := len(r.subs)
	r.subs = make(map[SubscriptionID]Callback)
	r.mu.Unlock()

	r.metrics.SetSubscribers(0)
	if dropped > 0 {
		r.logger.Debug("registry cleared", "dropped", dropped)
	}
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Dispatch invokes every callback registered when the call starts. Callbacks
// run without the lock held, so they may subscribe or unsubscribe. A callback
// removed before its turn is skipped. It returns the number of callbacks
// invoked.
func (r *Registry) Dispatch(env events.Envelope) int {
	start := time.Now()

	r.mu.RLock()
	snapshot := make([]entry, 0, len(r.subs))
	for id, cb := range r.subs {
		snapshot = append(snapshot, entry{id: id, cb: cb})
	}
	r.mu.RUnlock()

	invoked := 0
	for _, e := range snapshot {
		if e.cb == nil || !r.live(e.id) {
			continue
		}
		invoked++
		if err := r.invoke(e, env); err != nil {
			r.metrics.CallbackPanic()
			r.logger.Error("subscriber failed",
				"subscription", e.id,
				"type", env.Type,
				"error", err,
			)
		}
	}

	r.metrics.ObserveDispatch(time.Since(start))
	return invoked
}

func (r *Registry) live(id SubscriptionID) bool {
	r.mu.RLock()
	_, ok := r.subs[id]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) invoke(e entry, env events.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrCallbackPanic, p, debug.Stack())
		}
	}()
	e.cb(env)
	return nil
}
