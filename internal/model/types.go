package model

import (
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Friend Request Status
// -----------------------------------------------------------------------------

// FriendStatus is the lifecycle state of a friend request between two users.
type FriendStatus string

const (
	StatusPending  FriendStatus = "pending"
	StatusAccepted FriendStatus = "accepted"
	StatusRejected FriendStatus = "rejected"
	StatusRemoved  FriendStatus = "removed"
)

// FriendStatuses lists every status in display order (one tab each).
var FriendStatuses = []FriendStatus{StatusPending, StatusAccepted, StatusRejected, StatusRemoved}

// ParseFriendStatus accepts a status in any case ("PENDING", "pending").
func ParseFriendStatus(s string) (FriendStatus, error) {
	status := FriendStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown friend status %q", s)
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s FriendStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusRemoved:
		return true
	}
	return false
}

// IsAnswer reports whether s is a valid answer to a pending request.
func (s FriendStatus) IsAnswer() bool {
	return s == StatusAccepted || s == StatusRejected
}

// -----------------------------------------------------------------------------
// Users and Relationships
// -----------------------------------------------------------------------------

// User is a public user profile.
type User struct {
	ID           string        `json:"id,omitempty"`
	Email        string        `json:"email"`
	DisplayName  string        `json:"display_name"`
	FriendStatus *FriendStatus `json:"friend_status,omitempty"` // Relationship to the caller (search results only)
	IsAdmin      bool          `json:"is_admin,omitempty"`
	CreatedAt    *time.Time    `json:"created_at,omitempty"`
}

// FriendRequest links a requester and a recipient.
type FriendRequest struct {
	ID        string       `json:"id,omitempty"`
	Requester User         `json:"requester"`
	Recipient User         `json:"recipient"`
	Status    FriendStatus `json:"status"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// Counterpart returns the other party relative to selfEmail. incoming is true
// when the other party sent the request (the caller may answer it).
func (r FriendRequest) Counterpart(selfEmail string) (other User, incoming bool) {
	if strings.EqualFold(r.Requester.Email, selfEmail) {
		return r.Recipient, false
	}
	return r.Requester, true
}

// Involves reports whether email is either party of the request.
func (r FriendRequest) Involves(email string) bool {
	return strings.EqualFold(r.Requester.Email, email) || strings.EqualFold(r.Recipient.Email, email)
}

// -----------------------------------------------------------------------------
// Messaging
// -----------------------------------------------------------------------------

// Message is a direct message between two users.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Sender    User       `json:"sender"`
	Recipient User       `json:"recipient"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Involves reports whether email is the sender or recipient.
func (m Message) Involves(email string) bool {
	return strings.EqualFold(m.Sender.Email, email) || strings.EqualFold(m.Recipient.Email, email)
}

// FriendWithMessage is a friend plus the most recent message exchanged.
type FriendWithMessage struct {
	User
	LastMessage *Message `json:"last_message,omitempty"`
}

// -----------------------------------------------------------------------------
// Pagination
// -----------------------------------------------------------------------------

// Page is one offset-paginated slice of a list endpoint.
type Page[T any] struct {
	Data       []T  `json:"data"`
	NextOffset *int `json:"next_offset"` // nil when there are no more rows
}

// HasMore reports whether another page can be requested.
func (p Page[T]) HasMore() bool {
	return p.NextOffset != nil
}

// Append merges a following page into p, keeping the newer cursor.
func (p Page[T]) Append(next Page[T]) Page[T] {
	data := make([]T, 0, len(p.Data)+len(next.Data))
	data = append(data, p.Data...)
	data = append(data, next.Data...)
	return Page[T]{Data: data, NextOffset: next.NextOffset}
}
