package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/metrics"
)

// Manager owns the single notification connection of a session.
type Manager interface {
	// Connect opens a connection for identity, tearing down any prior one.
	// It is a no-op while a connection for the same identity is OPEN or
	// CONNECTING. The returned error mirrors the resulting state; State()
	// stays authoritative.
	Connect(ctx context.Context, identity string, creds CredentialProvider) error

	// Close tears the connection down and moves to DISCONNECTED.
	// Calling it with nothing open is a no-op.
	//
	// Close does not wait for the pump, so a subscriber may call it. An
	// envelope whose dispatch had already started can still be running
	// when Close returns; no later frame is dispatched. Callers that need a
	// hard cut clear their dispatcher after Close.
	Close() error

	// State returns the current lifecycle state.
	State() State

	// Identity returns the identity the connection belongs to, if any.
	Identity() string

	// States returns a channel of state transitions.
	States() <-chan StateEvent

	// Stats returns connection statistics.
	Stats() ManagerStats
}

// ClientFactory creates a transport for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// liveConn is one established transport plus its pump.
type liveConn struct {
	client Client
	gen    uint64
	stop   chan struct{}
	done   chan struct{}
}

// manager implements the Manager interface.
type manager struct {
	cfg        ManagerConfig
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	newClient  ClientFactory

	states chan StateEvent

	mu            sync.RWMutex
	state         State
	identity      string
	gen           uint64 // Bumped on every teardown; stale attempts and pumps compare against it
	active        *liveConn
	cancelAttempt context.CancelFunc
	lastErr       error
	openedAt      time.Time

	connects       atomic.Int64
	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	dispatched     atomic.Int64
}

// NewManager creates a connection manager that hands every decoded envelope
// to dispatcher. m may be nil.
func NewManager(cfg ManagerConfig, dispatcher Dispatcher, m *metrics.Metrics, logger *slog.Logger) Manager {
	return NewManagerWithFactory(cfg, dispatcher, m, logger, NewClient)
}

// NewManagerWithFactory is NewManager with a custom transport factory.
func NewManagerWithFactory(cfg ManagerConfig, dispatcher Dispatcher, m *metrics.Metrics, logger *slog.Logger, factory ClientFactory) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = NewClient
	}
	if cfg.StateBuffer <= 0 {
		cfg.StateBuffer = DefaultManagerConfig().StateBuffer
	}

	mgr := &manager{
		cfg:        cfg,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With("component", "connection"),
		newClient:  factory,
		states:     make(chan StateEvent, cfg.StateBuffer),
		state:      StateDisconnected,
	}
	m.SetState(StateDisconnected.String())
	return mgr
}

// Connect opens a connection for identity.
func (m *manager) Connect(ctx context.Context, identity string, creds CredentialProvider) error {
	if identity == "" || creds == nil {
		return ErrNoIdentity
	}

	m.mu.Lock()
	if m.state.Active() && m.identity == identity {
		m.mu.Unlock()
		return nil
	}

	// Unregister whatever was there before. Its transport is closed below,
	// before the new credential is fetched.
	old := m.detachLocked()
	if m.state != StateDisconnected {
		m.setStateLocked(StateDisconnected, nil)
	}

	gen := m.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelAttempt = cancel
	m.identity = identity
	m.lastErr = nil
	m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()

	m.release(old)

	m.logger.Info("connecting", "identity", identity)

	token, err := creds.FreshToken(attemptCtx)
	if err != nil {
		return m.fail(gen, fmt.Errorf("%w: %w", ErrCredential, err))
	}

	target, err := m.socketURL(token)
	if err != nil {
		return m.fail(gen, fmt.Errorf("%w: %w", ErrTransport, err))
	}

	client := m.newClient(ClientConfig{
		URL:              target,
		UserAgent:        m.cfg.UserAgent,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		PingInterval:     m.cfg.PingInterval,
		PingTimeout:      m.cfg.PingTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger)

	if err := client.Connect(attemptCtx); err != nil {
		return m.fail(gen, fmt.Errorf("%w: %w", ErrTransport, err))
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		client.Close()
		m.logger.Debug("discarding superseded connection", "identity", identity)
		return ErrSuperseded
	}
	conn := &liveConn{
		client: client,
		gen:    gen,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.active = conn
	m.cancelAttempt = nil
	m.openedAt = time.Now()
	m.setStateLocked(StateOpen, nil)
	m.mu.Unlock()

	m.connects.Add(1)
	go m.pump(conn)

	m.logger.Info("connected", "identity", identity)
	return nil
}

// Close tears down the connection: handlers first, then the transport,
// then the state.
func (m *manager) Close() error {
	m.mu.Lock()
	if m.state == StateDisconnected && m.active == nil && m.cancelAttempt == nil {
		m.mu.Unlock()
		return nil
	}
	old := m.detachLocked()
	gen := m.gen
	m.mu.Unlock()

	m.release(old)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		// A newer Connect owns the state now.
		return nil
	}
	m.identity = ""
	if m.state != StateDisconnected {
		m.setStateLocked(StateDisconnected, nil)
	}
	m.logger.Info("connection closed")
	return nil
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the identity the connection belongs to.
func (m *manager) Identity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// States returns the state transition channel.
func (m *manager) States() <-chan StateEvent {
	return m.states
}

// Stats returns connection statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	stats := ManagerStats{
		State:    m.state,
		Identity: m.identity,
		OpenedAt: m.openedAt,
	}
	if m.lastErr != nil {
		stats.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats.Connects = m.connects.Load()
	stats.FramesReceived = m.framesReceived.Load()
	stats.FramesDropped = m.framesDropped.Load()
	stats.Dispatched = m.dispatched.Load()
	return stats
}

// detachLocked invalidates the current generation and hands back the live
// connection, if any, for release. Caller holds m.mu.
func (m *manager) detachLocked() *liveConn {
	m.gen++
	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}
	old := m.active
	m.active = nil
	return old
}

// release stops the pump and closes the transport. It does not wait for the
// pump to exit so it is safe to call from inside a subscriber.
func (m *manager) release(c *liveConn) {
	if c == nil {
		return
	}
	close(c.stop)
	if err := c.client.Close(); err != nil {
		m.logger.Debug("transport close failed", "error", err)
	}
}

// fail records a failed attempt unless it has been superseded.
func (m *manager) fail(gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		m.logger.Debug("superseded attempt failed", "error", err)
		return ErrSuperseded
	}
	m.cancelAttempt = nil
	m.setStateLocked(StateErrored, err)
	m.logger.Warn("connect failed", "identity", m.identity, "error", err)
	return err
}

// setStateLocked records a transition and publishes it. Caller holds m.mu.
func (m *manager) setStateLocked(next State, cause error) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	if cause != nil {
		m.lastErr = cause
	}
	m.metrics.Transition(prev.String(), next.String())

	ev := StateEvent{Old: prev, New: next, Err: cause, At: time.Now()}
	select {
	case m.states <- ev:
	default:
		m.logger.Warn("state channel full, dropping transition",
			"old", prev.String(),
			"new", next.String(),
		)
	}
}

// pump forwards frames from one transport to the dispatcher, one at a time.
func (m *manager) pump(c *liveConn) {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return

		case msg := <-c.client.Messages():
			m.handleFrame(c, msg)

		case err := <-c.client.Errors():
			// Deliver whatever arrived before the failure.
			for drained := false; !drained; {
				select {
				case msg := <-c.client.Messages():
					m.handleFrame(c, msg)
				default:
					drained = true
				}
			}
			m.transportFailed(c, err)
			return
		}
	}
}

func (m *manager) current(c *liveConn) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return c.gen == m.gen && m.active == c
}

// handleFrame decodes and dispatches one frame. The generation check runs
// once per frame, before decoding; see Manager.Close for what that allows.
func (m *manager) handleFrame(c *liveConn, msg TimestampedMessage) {
	if !m.current(c) {
		return
	}

	m.framesReceived.Add(1)
	m.metrics.FrameReceived()

	env, err := events.Decode(msg.Data)
	if err != nil {
		m.framesDropped.Add(1)
		m.metrics.FrameDropped("decode")
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(msg.Data))
		return
	}

	if m.dispatcher == nil {
		return
	}
	m.dispatched.Add(1)
	m.dispatcher.Dispatch(env)
}

// transportFailed handles the transport ending on its own.
func (m *manager) transportFailed(c *liveConn, err error) {
	m.mu.Lock()
	if c.gen != m.gen || m.active != c {
		m.mu.Unlock()
		return
	}
	m.detachLocked()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Info("server closed connection", "identity", m.identity)
		m.setStateLocked(StateDisconnected, nil)
	} else {
		wrapped := fmt.Errorf("%w: %w", ErrTransport, err)
		m.logger.Warn("connection lost", "identity", m.identity, "error", err)
		m.setStateLocked(StateErrored, wrapped)
	}
	m.mu.Unlock()

	if err := c.client.Close(); err != nil && !errors.Is(err, ErrAlreadyClosed) {
		m.logger.Debug("transport close failed", "error", err)
	}
}

// socketURL builds <ws_url><ws_path>?token=<token>.
func (m *manager) socketURL(token string) (string, error) {
	u, err := url.Parse(m.cfg.WSURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + m.cfg.WSPath
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
