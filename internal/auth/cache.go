package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheSkew is how long before expiry a cached token is replaced.
const DefaultCacheSkew = time.Minute

// TokenCache reuses a token until shortly before its exp claim. It suits
// REST calls; the notification socket should keep using FreshToken on the
// underlying provider.
type TokenCache struct {
	provider CredentialProvider
	skew     time.Duration
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenCache wraps provider. skew <= 0 uses DefaultCacheSkew.
func NewTokenCache(provider CredentialProvider, skew time.Duration) *TokenCache {
	if skew <= 0 {
		skew = DefaultCacheSkew
	}
	return &TokenCache{provider: provider, skew: skew, now: time.Now}
}

// FreshToken returns the cached token while it is valid.
func (c *TokenCache) FreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires.Add(-c.skew)) {
		return c.token, nil
	}

	token, err := c.provider.FreshToken(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expires = time.Time{}
	// Tokens without a readable exp are never reused.
	if claims, err := ParseClaims(token); err == nil && claims.ExpiresAt != nil {
		c.expires = claims.ExpiresAt.Time
	}
	return token, nil
}

// Invalidate drops the cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}
