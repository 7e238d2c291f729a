package views

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ConversationCache keeps the most recently used conversations open.
// Evicted conversations are closed.
type ConversationCache struct {
	subs   Subscriber
	api    MessagesAPI
	opts   Options
	views  *lru.Cache[string, *ConversationView]
	flight singleflight.Group
}

// NewConversationCache creates a cache holding up to size open views.
func NewConversationCache(size int, subs Subscriber, client MessagesAPI, opts Options) (*ConversationCache, error) {
	views, err := lru.NewWithEvict(size, func(_ string, v *ConversationView) {
		v.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("conversation cache: %w", err)
	}
	return &ConversationCache{
		subs:  subs,
		api:   client,
		opts:  opts.withDefaults(),
		views: views,
	}, nil
}

// Get returns the open conversation with peer, opening it on a miss.
// Concurrent misses for the same peer share one load.
func (c *ConversationCache) Get(ctx context.Context, peer string) (*ConversationView, error) {
	key := strings.ToLower(strings.TrimSpace(peer))
	if v, ok := c.views.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := c.views.Get(key); ok {
			return v, nil
		}
		v := NewConversationView(c.subs, c.api, key, c.opts)
		if err := v.Open(ctx); err != nil {
			return nil, err
		}
		c.views.Add(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*ConversationView), nil
}

// Remove closes and drops the conversation with peer.
func (c *ConversationCache) Remove(peer string) {
	c.views.Remove(strings.ToLower(strings.TrimSpace(peer)))
}

// Len returns the number of open conversations.
func (c *ConversationCache) Len() int {
	return c.views.Len()
}

// Purge closes every conversation.
func (c *ConversationCache) Purge() {
	c.views.Purge()
}
