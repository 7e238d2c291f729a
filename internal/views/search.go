package views

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/model"
)

// ErrSuperseded is returned by a search that a newer Search replaced.
var ErrSuperseded = errors.New("search superseded by a newer query")

// SearchAPI is the REST surface used by SearchView.
type SearchAPI interface {
	SearchUsers(ctx context.Context, q string, page api.PageRequest) (*model.Page[model.User], error)
}

// SearchView runs debounced user searches. Only the latest query's results
// are kept. Friend request events refetch the current results since each
// user carries the caller's friend status.
type SearchView struct {
	base
	api      SearchAPI
	pageSize int
	debounce time.Duration

	mu       sync.RWMutex
	gen      uint64
	searched bool
	query    string
	page     model.Page[model.User]
	req      api.PageRequest
}

// NewSearchView creates a closed view that waits debounce before each query.
func NewSearchView(subs Subscriber, client SearchAPI, debounce time.Duration, opts Options) *SearchView {
	opts = opts.withDefaults()
	return &SearchView{
		base: base{
			subs:   subs,
			logger: opts.Logger.With("component", "search_view"),
		},
		api:      client,
		pageSize: opts.PageSize,
		debounce: debounce,
	}
}

// Open subscribes. No query runs until Search.
func (v *SearchView) Open(ctx context.Context) error {
	return v.attach(ctx, v.handle, v.background)
}

// Close unsubscribes.
func (v *SearchView) Close() {
	v.detach()
}

func (v *SearchView) handle(env events.Envelope) {
	if env.Type.IsFriendRequest() {
		v.kick()
	}
}

func (v *SearchView) background(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) && ctx.Err() == nil {
		v.logger.Warn("refresh failed", "error", err)
	}
}

// Search waits for the debounce interval and then runs q. It returns
// ErrSuperseded if another Search started in the meantime.
func (v *SearchView) Search(ctx context.Context, q string) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	if v.debounce > 0 {
		timer := time.NewTimer(v.debounce)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if !v.current(gen) {
		return ErrSuperseded
	}
	return v.fetch(ctx, gen, q)
}

// Refresh reruns the current query immediately.
func (v *SearchView) Refresh(ctx context.Context) error {
	v.mu.RLock()
	gen, q, searched := v.gen, v.query, v.searched
	v.mu.RUnlock()
	if !searched {
		return nil
	}
	return v.fetch(ctx, gen, q)
}

func (v *SearchView) fetch(ctx context.Context, gen uint64, q string) error {
	req := api.FirstPage(v.pageSize)
	page, err := v.api.SearchUsers(ctx, q, req)

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		v.mu.Unlock()
		return fmt.Errorf("search users %q: %w", q, err)
	}
	v.searched = true
	v.query = q
	v.page = *page
	v.req = req
	v.mu.Unlock()

	v.changed()
	return nil
}

// LoadMore appends the next page of the current results.
func (v *SearchView) LoadMore(ctx context.Context) (bool, error) {
	v.mu.RLock()
	gen, q := v.gen, v.query
	next, ok := api.Next(v.req, v.page)
	v.mu.RUnlock()
	if !ok {
		return false, nil
	}

	page, err := v.api.SearchUsers(ctx, q, next)
	if err != nil {
		return false, fmt.Errorf("search users %q: %w", q, err)
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return false, ErrSuperseded
	}
	v.page = v.page.Append(*page)
	v.req = next
	v.mu.Unlock()

	v.changed()
	return true, nil
}

func (v *SearchView) current(gen uint64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.gen == gen
}

// Query returns the query behind the current results.
func (v *SearchView) Query() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.query
}

// Snapshot returns a copy of the current results.
func (v *SearchView) Snapshot() []model.User {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]model.User(nil), v.page.Data...)
}
