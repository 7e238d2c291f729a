package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/chatpulse/internal/auth"
	"github.com/rickgao/chatpulse/internal/connection"
)

// Errors
var (
	ErrShutdown           = errors.New("session shut down")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrReconnectThrottled = errors.New("reconnect requested too soon")
)

// Subscribers is the part of the registry the binding manages.
type Subscribers interface {
	Clear()
}

// Config configures a Binding.
type Config struct {
	ReconnectInterval time.Duration // Minimum spacing between manual reconnects
}

// Binding connects and disconnects the manager as the identity changes.
type Binding struct {
	manager connection.Manager
	subs    Subscribers
	limiter *rate.Limiter
	logger  *slog.Logger

	// opMu serializes SetIdentity, Reconnect and Shutdown.
	opMu sync.Mutex

	mu       sync.Mutex
	identity *auth.Identity
	pending  *auth.Identity // Target of the operation holding opMu
	closed   bool
}

// New creates a binding. No connection is opened until SetIdentity.
func New(manager connection.Manager, subs Subscribers, cfg Config, logger *slog.Logger) *Binding {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.ReconnectInterval > 0 {
		limit = rate.Every(cfg.ReconnectInterval)
	}
	return &Binding{
		manager: manager,
		subs:    subs,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "session"),
	}
}

// SetIdentity binds the connection to id. A nil id signs out: the
// connection is closed and every subscriber dropped. Switching to a
// different user does the same before connecting for the new one.
//
// The returned error is informational; Manager().State() is authoritative.
func (b *Binding) SetIdentity(ctx context.Context, id *auth.Identity) error {
	if b.isClosed() {
		return ErrShutdown
	}
	b.interrupt(id)

	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrShutdown
	}
	prev := b.identity
	b.pending = id
	b.mu.Unlock()

	defer b.setPending(nil)

	if id == nil {
		if prev != nil {
			b.logger.Info("signed out", "identity", prev.String())
		}
		b.teardown()
		b.setIdentity(nil)
		return nil
	}

	if prev != nil && !prev.Same(id) {
		b.logger.Info("identity changed", "from", prev.String(), "to", id.String())
		b.teardown()
	}
	b.setIdentity(id)

	return b.manager.Connect(ctx, id.UID, id)
}

// Reconnect retries the connection for the current identity. It does
// nothing while a connection is OPEN or CONNECTING. Only calls that reach
// the manager count against the rate limit.
func (b *Binding) Reconnect(ctx context.Context) error {
	if b.isClosed() {
		return ErrShutdown
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	id := b.Identity()
	if id == nil {
		return ErrNotSignedIn
	}
	if b.manager.State().Active() {
		return nil
	}
	if !b.limiter.Allow() {
		return ErrReconnectThrottled
	}

	b.setPending(id)
	defer b.setPending(nil)

	b.logger.Info("manual reconnect", "identity", id.String())
	return b.manager.Connect(ctx, id.UID, id)
}

// Shutdown closes the connection and drops every subscriber. Further
// SetIdentity and Reconnect calls fail with ErrShutdown.
func (b *Binding) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	// Abort any connect still holding opMu.
	b.manager.Close()

	b.opMu.Lock()
	defer b.opMu.Unlock()
	b.teardown()
	b.setIdentity(nil)
	b.logger.Info("session shut down")
}

// Identity returns the bound identity, nil when signed out.
func (b *Binding) Identity() *auth.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity
}

// Manager returns the underlying connection manager.
func (b *Binding) Manager() connection.Manager {
	return b.manager
}

// interrupt aborts an in-flight operation for a different identity so the
// caller does not queue behind a slow handshake.
func (b *Binding) interrupt(next *auth.Identity) {
	b.mu.Lock()
	pending := b.pending
	b.mu.Unlock()

	if pending != nil && !pending.Same(next) {
		b.manager.Close()
	}
}

// teardown closes the connection, then forgets the subscribers.
func (b *Binding) teardown() {
	if err := b.manager.Close(); err != nil {
		b.logger.Warn("close failed", "error", err)
	}
	if b.subs != nil {
		b.subs.Clear()
	}
}

func (b *Binding) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Binding) setIdentity(id *auth.Identity) {
	b.mu.Lock()
	b.identity = id
	b.mu.Unlock()
}

func (b *Binding) setPending(id *auth.Identity) {
	b.mu.Lock()
	b.pending = id
	b.mu.Unlock()
}
