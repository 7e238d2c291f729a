package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/model"
)

// FriendsAPI is the REST surface used by FriendsView.
type FriendsAPI interface {
	FriendsWithLastMessage(ctx context.Context, q string, page api.PageRequest) (*model.Page[model.FriendWithMessage], error)
}

// FriendsView lists friends with the last message exchanged. New messages
// and changes to friendships trigger a refetch.
type FriendsView struct {
	base
	api      FriendsAPI
	pageSize int

	fetchMu sync.Mutex

	mu      sync.RWMutex
	query   string
	page    model.Page[model.FriendWithMessage]
	req     api.PageRequest
	lastErr error
}

// NewFriendsView creates a closed view.
func NewFriendsView(subs Subscriber, client FriendsAPI, opts Options) *FriendsView {
	opts = opts.withDefaults()
	return &FriendsView{
		base: base{
			subs:   subs,
			logger: opts.Logger.With("component", "friends_view"),
		},
		api:      client,
		pageSize: opts.PageSize,
	}
}

// Open subscribes and loads the first page.
func (v *FriendsView) Open(ctx context.Context) error {
	if err := v.attach(ctx, v.handle, v.background); err != nil {
		return err
	}
	if err := v.Refresh(ctx); err != nil {
		v.detach()
		return err
	}
	return nil
}

// Close unsubscribes.
func (v *FriendsView) Close() {
	v.detach()
}

func (v *FriendsView) handle(env events.Envelope) {
	switch {
	case env.Type.IsMessage(),
		env.Type == events.FriendRequestAnswer,
		env.Type == events.FriendRequestRemoved:
		v.kick()
	}
}

func (v *FriendsView) background(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
		v.logger.Warn("refresh failed", "error", err)
	}
}

// SetQuery filters friends by q. An open view reloads; a closed one uses
// q on the next Open.
func (v *FriendsView) SetQuery(ctx context.Context, q string) error {
	v.mu.Lock()
	v.query = q
	v.page = model.Page[model.FriendWithMessage]{}
	v.mu.Unlock()
	if !v.isOpen() {
		return nil
	}
	return v.Refresh(ctx)
}

// Refresh refetches from offset 0, keeping as many rows as are loaded.
func (v *FriendsView) Refresh(ctx context.Context) error {
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	v.mu.RLock()
	q := v.query
	req := api.FirstPage(max(v.pageSize, len(v.page.Data)))
	v.mu.RUnlock()

	page, err := v.api.FriendsWithLastMessage(ctx, q, req)

	v.mu.Lock()
	if v.query != q {
		v.mu.Unlock()
		return nil
	}
	v.lastErr = err
	if err == nil {
		v.page = *page
		v.req = req
	}
	v.mu.Unlock()

	if err != nil {
		return fmt.Errorf("list friends: %w", err)
	}
	v.changed()
	return nil
}

// LoadMore appends the next page.
func (v *FriendsView) LoadMore(ctx context.Context) (bool, error) {
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	v.mu.RLock()
	q := v.query
	next, ok := api.Next(v.req, v.page)
	v.mu.RUnlock()
	if !ok {
		return false, nil
	}
	next.Limit = v.pageSize

	page, err := v.api.FriendsWithLastMessage(ctx, q, next)
	if err != nil {
		return false, fmt.Errorf("list friends: %w", err)
	}

	v.mu.Lock()
	if v.query != q {
		v.mu.Unlock()
		return false, nil
	}
	v.page = v.page.Append(*page)
	v.req = next
	v.mu.Unlock()

	v.changed()
	return true, nil
}

// Snapshot returns a copy of the loaded friends.
func (v *FriendsView) Snapshot() []model.FriendWithMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]model.FriendWithMessage(nil), v.page.Data...)
}

// HasMore reports whether LoadMore would fetch anything.
func (v *FriendsView) HasMore() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.page.HasMore()
}

// Err returns the result of the most recent refresh.
func (v *FriendsView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}
