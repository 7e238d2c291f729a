package views

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/model"
)

// DefaultConversationLimit is the number of messages loaded when a
// conversation opens.
const DefaultConversationLimit = 1000

// MessagesAPI is the REST surface used by ConversationView.
type MessagesAPI interface {
	GetMessages(ctx context.Context, email string, page api.PageRequest) (*model.Page[model.Message], error)
	SendMessage(ctx context.Context, email, text string) error
}

// ConversationView holds the messages exchanged with one peer. Message
// events that involve the peer are appended in place.
type ConversationView struct {
	base
	api   MessagesAPI
	peer  string
	limit int

	mu       sync.RWMutex
	messages []model.Message
	loaded   bool
	early    []model.Message
}

// NewConversationView creates a closed view for peer.
func NewConversationView(subs Subscriber, client MessagesAPI, peer string, opts Options) *ConversationView {
	opts = opts.withDefaults()
	return &ConversationView{
		base: base{
			subs:   subs,
			logger: opts.Logger.With("component", "conversation_view", "peer", peer),
		},
		api:   client,
		peer:  strings.ToLower(strings.TrimSpace(peer)),
		limit: DefaultConversationLimit,
	}
}

// Peer returns the normalized peer email.
func (v *ConversationView) Peer() string {
	return v.peer
}

// Open subscribes, then loads the history. Messages that arrive during the
// load are merged after it.
func (v *ConversationView) Open(ctx context.Context) error {
	if v.isOpen() {
		return ErrAlreadyOpen
	}
	v.mu.Lock()
	v.loaded = false
	v.early = nil
	v.mu.Unlock()

	if err := v.attach(ctx, v.handle, nil); err != nil {
		return err
	}

	page, err := v.api.GetMessages(ctx, v.peer, api.FirstPage(v.limit))
	if err != nil {
		v.detach()
		return fmt.Errorf("load conversation with %s: %w", v.peer, err)
	}

	v.mu.Lock()
	v.messages = append(v.messages[:0], page.Data...)
	for _, msg := range v.early {
		if !containsMessage(v.messages, msg) {
			v.messages = append(v.messages, msg)
		}
	}
	v.early = nil
	v.loaded = true
	v.mu.Unlock()

	v.changed()
	return nil
}

// Close unsubscribes.
func (v *ConversationView) Close() {
	v.detach()
}

func (v *ConversationView) handle(env events.Envelope) {
	if !env.Type.IsMessage() {
		return
	}
	msg, err := env.Message()
	if err != nil {
		v.logger.Debug("skipping message event", "error", err)
		return
	}
	if !msg.Involves(v.peer) {
		return
	}

	v.mu.Lock()
	if !v.loaded {
		v.early = append(v.early, msg)
		v.mu.Unlock()
		return
	}
	v.messages = append(v.messages, msg)
	v.mu.Unlock()

	v.changed()
}

// Send posts text to the peer. The message shows up through the
// MESSAGE_SENT echo, not here.
func (v *ConversationView) Send(ctx context.Context, text string) error {
	return v.api.SendMessage(ctx, v.peer, text)
}

// Snapshot returns a copy of the messages in arrival order.
func (v *ConversationView) Snapshot() []model.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]model.Message(nil), v.messages...)
}

// Loaded reports whether the initial history has arrived.
func (v *ConversationView) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

func containsMessage(msgs []model.Message, msg model.Message) bool {
	if msg.ID == "" {
		return false
	}
	for _, m := range msgs {
		if m.ID == msg.ID {
			return true
		}
	}
	return false
}
