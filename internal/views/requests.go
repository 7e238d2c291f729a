package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/model"
)

// RequestsAPI is the REST surface used by RequestsView.
type RequestsAPI interface {
	ListFriendRequests(ctx context.Context, statuses []model.FriendStatus, page api.PageRequest) (*model.Page[model.FriendRequest], error)
	SendFriendRequest(ctx context.Context, email string) error
	AnswerFriendRequest(ctx context.Context, email string, status model.FriendStatus) error
	RemoveFriendRequest(ctx context.Context, email string) error
}

// RequestsView lists friend requests in a single status. Any friend request
// event triggers a refetch of the first page.
type RequestsView struct {
	base
	api      RequestsAPI
	status   model.FriendStatus
	pageSize int

	fetchMu sync.Mutex

	mu      sync.RWMutex
	page    model.Page[model.FriendRequest]
	req     api.PageRequest
	lastErr error
}

// NewRequestsView creates a closed view for status.
func NewRequestsView(subs Subscriber, client RequestsAPI, status model.FriendStatus, opts Options) (*RequestsView, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("requests view: unknown status %q", status)
	}
	opts = opts.withDefaults()
	return &RequestsView{
		base: base{
			subs:   subs,
			logger: opts.Logger.With("component", "requests_view", "status", string(status)),
		},
		api:      client,
		status:   status,
		pageSize: opts.PageSize,
	}, nil
}

// Status returns the tab this view lists.
func (v *RequestsView) Status() model.FriendStatus {
	return v.status
}

// Open subscribes and loads the first page.
func (v *RequestsView) Open(ctx context.Context) error {
	if err := v.attach(ctx, v.handle, v.background); err != nil {
		return err
	}
	if err := v.Refresh(ctx); err != nil {
		v.detach()
		return err
	}
	return nil
}

// Close unsubscribes. Data loaded so far stays readable.
func (v *RequestsView) Close() {
	v.detach()
}

func (v *RequestsView) handle(env events.Envelope) {
	if env.Type.IsFriendRequest() {
		v.kick()
	}
}

func (v *RequestsView) background(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
		v.logger.Warn("refresh failed", "error", err)
	}
}

// Refresh replaces the contents with the first page.
func (v *RequestsView) Refresh(ctx context.Context) error {
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	req := api.FirstPage(v.pageSize)
	page, err := v.api.ListFriendRequests(ctx, []model.FriendStatus{v.status}, req)

	v.mu.Lock()
	v.lastErr = err
	if err == nil {
		v.page = *page
		v.req = req
	}
	v.mu.Unlock()

	if err != nil {
		return fmt.Errorf("list %s requests: %w", v.status, err)
	}
	v.changed()
	return nil
}

// LoadMore appends the next page. It returns false when there was nothing
// left to load.
func (v *RequestsView) LoadMore(ctx context.Context) (bool, error) {
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	v.mu.RLock()
	next, ok := api.Next(v.req, v.page)
	v.mu.RUnlock()
	if !ok {
		return false, nil
	}

	page, err := v.api.ListFriendRequests(ctx, []model.FriendStatus{v.status}, next)
	if err != nil {
		return false, fmt.Errorf("list %s requests: %w", v.status, err)
	}

	v.mu.Lock()
	v.page = v.page.Append(*page)
	v.req = next
	v.mu.Unlock()

	v.changed()
	return true, nil
}

// Send sends a friend request to email and refreshes on success.
func (v *RequestsView) Send(ctx context.Context, email string) error {
	if err := v.api.SendFriendRequest(ctx, email); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// Answer accepts or rejects the pending request from email.
func (v *RequestsView) Answer(ctx context.Context, email string, status model.FriendStatus) error {
	if err := v.api.AnswerFriendRequest(ctx, email, status); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// Remove removes the request or friendship with email.
func (v *RequestsView) Remove(ctx context.Context, email string) error {
	if err := v.api.RemoveFriendRequest(ctx, email); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// Snapshot returns a copy of the loaded requests.
func (v *RequestsView) Snapshot() []model.FriendRequest {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]model.FriendRequest(nil), v.page.Data...)
}

// HasMore reports whether LoadMore would fetch anything.
func (v *RequestsView) HasMore() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.page.HasMore()
}

// Err returns the result of the most recent refresh.
func (v *RequestsView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}
