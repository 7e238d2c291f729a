package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/chatpulse/internal/events"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrTransport       = errors.New("transport error")
	ErrCredential      = errors.New("credential error")
	ErrSuperseded      = errors.New("connect attempt superseded")
	ErrNoIdentity      = errors.New("identity is required")
)

// State is the lifecycle state of the managed connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateErrored
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Active reports whether the state holds or is acquiring a connection.
func (s State) Active() bool {
	return s == StateConnecting || s == StateOpen
}

// StateEvent describes one state transition.
type StateEvent struct {
	Old State
	New State
	Err error // Cause of an ERRORED transition
	At  time.Time
}

// CredentialProvider returns a bearer token for the notification socket.
// Implementations must force a refresh on every call rather than return a
// cached token.
type CredentialProvider interface {
	FreshToken(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) FreshToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// Dispatcher receives every successfully decoded envelope.
type Dispatcher interface {
	Dispatch(env events.Envelope) int
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw text frame from the websocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a websocket transport.
type ClientConfig struct {
	URL              string        // Full websocket URL including the token query parameter
	UserAgent        string        // Sent on the handshake when set
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for control frames
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	WSURL            string        // Base websocket URL (e.g., wss://chat.example.com)
	WSPath           string        // Notification path appended to WSURL (e.g., /message)
	UserAgent        string        // Sent on the handshake when set
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // Keepalive ping interval
	PingTimeout      time.Duration // Stale connection threshold
	WriteTimeout     time.Duration // Control frame write deadline
	BufferSize       int           // Inbound frame buffer per connection
	StateBuffer      int           // Buffer of the States() channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	client := DefaultClientConfig()
	return ManagerConfig{
		WSPath:           "/message",
		HandshakeTimeout: client.HandshakeTimeout,
		PingInterval:     client.PingInterval,
		PingTimeout:      client.PingTimeout,
		WriteTimeout:     client.WriteTimeout,
		BufferSize:       client.BufferSize,
		StateBuffer:      16,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State          State
	Identity       string
	Connects       int64 // Successful handshakes
	FramesReceived int64
	FramesDropped  int64 // Malformed frames
	Dispatched     int64 // Envelopes handed to the dispatcher
	LastError      string
	OpenedAt       time.Time
}
