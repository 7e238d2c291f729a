package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/chatpulse/internal/model"
)

// Errors
var (
	ErrDecode       = errors.New("decode envelope")
	ErrWrongPayload = errors.New("payload does not match event type")
)

// EventType identifies the kind of notification carried by an Envelope.
type EventType string

const (
	FriendRequestRemoved  EventType = "FRIEND_REQUEST_REMOVED"
	FriendRequestSent     EventType = "FRIEND_REQUEST_SENT"
	FriendRequestReceived EventType = "FRIEND_REQUEST_RECEIVED"
	FriendRequestAnswer   EventType = "FRIEND_REQUEST_ANSWER"
	MessageReceived       EventType = "MESSAGE_RECEIVED"
	MessageSent           EventType = "MESSAGE_SENT"
)

// Types lists every known event type.
var Types = []EventType{
	FriendRequestRemoved,
	FriendRequestSent,
	FriendRequestReceived,
	FriendRequestAnswer,
	MessageReceived,
	MessageSent,
}

// Known reports whether t is part of the taxonomy.
func (t EventType) Known() bool {
	return t.IsFriendRequest() || t.IsMessage()
}

// IsFriendRequest reports whether t is one of the FRIEND_REQUEST_* events.
func (t EventType) IsFriendRequest() bool {
	switch t {
	case FriendRequestRemoved, FriendRequestSent, FriendRequestReceived, FriendRequestAnswer:
		return true
	}
	return false
}

// IsMessage reports whether t is one of the MESSAGE_* events.
func (t EventType) IsMessage() bool {
	return t == MessageReceived || t == MessageSent
}

// Envelope is one decoded notification. It is immutable once decoded;
// subscribers must not modify Data.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message decodes the payload of a MESSAGE_* envelope.
func (e Envelope) Message() (model.Message, error) {
	var msg model.Message
	if !e.Type.IsMessage() {
		return msg, fmt.Errorf("%w: %s is not a message event", ErrWrongPayload, e.Type)
	}
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal message payload: %w", err)
	}
	return msg, nil
}

// FriendRequest decodes the payload of a FRIEND_REQUEST_* envelope.
func (e Envelope) FriendRequest() (model.FriendRequest, error) {
	var req model.FriendRequest
	if !e.Type.IsFriendRequest() {
		return req, fmt.Errorf("%w: %s is not a friend request event", ErrWrongPayload, e.Type)
	}
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return req, fmt.Errorf("unmarshal friend request payload: %w", err)
	}
	return req, nil
}
