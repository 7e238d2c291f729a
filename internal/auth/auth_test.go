package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/chatpulse/internal/config"
	"github.com/rickgao/chatpulse/internal/storage"
)

var testSigningKey = []byte("test-signing-key")

// fakeIDToken signs claims with a throwaway HMAC key. The client never
// verifies signatures, so any key works.
func fakeIDToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	return token
}

// fakeProvider mimics the identity provider endpoints.
type fakeProvider struct {
	t *testing.T

	mu        sync.Mutex
	exchanges int
	lastKey   string
	lastGrant string
	rotate    bool
	revoked   bool
}

func (p *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"localId":      "uid-alice",
			"email":        body["email"].(string),
			"idToken":      fakeIDToken(p.t, Claims{UserID: "uid-alice", Email: "alice@example.com"}),
			"refreshToken": "refresh-0",
			"expiresIn":    "3600",
		})
	})

	mux.HandleFunc("/v1/accounts:signInWithCustomToken", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		json.NewEncoder(w).Encode(map[string]string{
			"idToken":      fakeIDToken(p.t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "uid-bob"}, Email: "bob@example.com"}),
			"refreshToken": "refresh-bob",
			"expiresIn":    "3600",
		})
	})

	mux.HandleFunc("/v1/token", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		r.ParseForm()

		p.mu.Lock()
		p.exchanges++
		n := p.exchanges
		p.lastGrant = r.PostForm.Get("grant_type")
		revoked, rotate := p.revoked, p.rotate
		p.mu.Unlock()

		if revoked {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"TOKEN_EXPIRED"}}`))
			return
		}

		refresh := r.PostForm.Get("refresh_token")
		if rotate {
			refresh = "refresh-rotated"
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id_token":      fakeIDToken(p.t, Claims{UserID: "uid-alice", Email: "alice@example.com", RegisteredClaims: jwt.RegisteredClaims{ID: fmt.Sprint(n)}}),
			"refresh_token": refresh,
			"user_id":       "uid-alice",
			"expires_in":    "3600",
		})
	})

	return mux
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakeProvider) snapshot() (exchanges int, key, grant string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges, p.lastKey, p.lastGrant
}

func (p *fakeProvider) record(r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastKey = r.URL.Query().Get("key")
}

func newToolkit(t *testing.T, store storage.Store) (*IdentityToolkit, *fakeProvider) {
	t.Helper()
	p := &fakeProvider{t: t}
	server := httptest.NewServer(p.handler())
	t.Cleanup(server.Close)

	opts := []Option{WithHTTPClient(server.Client())}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	tk := NewIdentityToolkit(config.AuthConfig{
		APIKey:      "web-key",
		IdentityURL: server.URL + "/v1/",
		TokenURL:    server.URL + "/v1/token",
	}, opts...)
	return tk, p
}

func TestSignInWithPassword(t *testing.T) {
	store := storage.NewMemoryStore()
	tk, p := newToolkit(t, store)
	ctx := context.Background()

	id, err := tk.SignInWithPassword(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "uid-alice", id.UID)
	assert.Equal(t, "alice@example.com", id.Email)
	_, key, _ := p.snapshot()
	assert.Equal(t, "web-key", key)

	stored, err := store.Get(ctx, storage.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-0", stored)

	email, err := store.Get(ctx, storage.KeyEmail)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	tk, _ := newToolkit(t, nil)

	_, err := tk.SignInWithPassword(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "INVALID_LOGIN_CREDENTIALS", perr.Message)
}

func TestSignInWithCustomToken_ReadsClaims(t *testing.T) {
	tk, _ := newToolkit(t, nil)

	id, err := tk.SignInWithCustomToken(context.Background(), "admin-issued")
	require.NoError(t, err)
	assert.Equal(t, "uid-bob", id.UID)
	assert.Equal(t, "bob@example.com", id.Email)
}

func TestFreshToken_ExchangesEveryCall(t *testing.T) {
	tk, p := newToolkit(t, nil)
	ctx := context.Background()

	id, err := tk.SignInWithPassword(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)

	first, err := id.FreshToken(ctx)
	require.NoError(t, err)
	second, err := id.FreshToken(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each call must mint a new token")
	exchanges, _, grant := p.snapshot()
	assert.Equal(t, 2, exchanges)
	assert.Equal(t, "refresh_token", grant)
}

func TestFreshToken_PersistsRotatedRefreshToken(t *testing.T) {
	store := storage.NewMemoryStore()
	tk, p := newToolkit(t, store)
	ctx := context.Background()

	id, err := tk.SignInWithPassword(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)

	p.set(func(p *fakeProvider) { p.rotate = true })
	_, err = id.FreshToken(ctx)
	require.NoError(t, err)

	stored, err := store.Get(ctx, storage.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-rotated", stored)
}

func TestFreshToken_Revoked(t *testing.T) {
	tk, p := newToolkit(t, nil)
	ctx := context.Background()

	id, err := tk.SignInWithPassword(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)

	p.set(func(p *fakeProvider) { p.revoked = true })
	_, err = id.FreshToken(ctx)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestResume(t *testing.T) {
	store := storage.NewMemoryStore()
	tk, _ := newToolkit(t, store)
	ctx := context.Background()

	_, err := tk.Resume(ctx)
	assert.ErrorIs(t, err, ErrNoRefreshToken)

	require.NoError(t, store.Set(ctx, storage.KeyToken, "refresh-saved"))

	id, err := tk.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "uid-alice", id.UID)
	assert.Equal(t, "alice@example.com", id.Email)

	require.NoError(t, tk.SignOut(ctx))
	_, err = store.Get(ctx, storage.KeyToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResume_WithoutStore(t *testing.T) {
	tk, _ := newToolkit(t, nil)
	_, err := tk.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.NoError(t, tk.SignOut(context.Background()))
}

func TestParseClaims(t *testing.T) {
	exp := time.Unix(1_700_000_000, 0)
	token := fakeIDToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1", ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            "x@y.z",
		Admin:            true,
	})

	// Expired tokens still parse; only the backend rejects them.
	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", claims.UID())
	assert.Equal(t, "x@y.z", claims.Email)
	assert.True(t, claims.Admin)
	require.NotNil(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.Time.Equal(exp))

	claims, err = ParseClaims(fakeIDToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-2"}, UserID: "uid-2"}))
	require.NoError(t, err)
	assert.Equal(t, "uid-2", claims.UID())

	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	for _, bad := range []string{"", "a.b", "a.!!!.c", header + ".!!!.c", header + "." + enc.EncodeToString([]byte("nope")) + ".c"} {
		_, err := ParseClaims(bad)
		assert.ErrorIs(t, err, ErrMalformedToken, "token %q", bad)
	}
}

func TestIdentity(t *testing.T) {
	a := &Identity{UID: "1", Email: "a@x.io", Provider: StaticToken("tok")}
	b := &Identity{UID: "1"}
	c := &Identity{UID: "2"}

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
	assert.False(t, a.Same(nil))
	assert.True(t, (*Identity)(nil).Same(nil))

	assert.Equal(t, "a@x.io", a.String())
	assert.Equal(t, "1", b.String())
	assert.True(t, strings.Contains((*Identity)(nil).String(), "signed out"))

	tok, err := a.FreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	_, err = b.FreshToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)

	_, err = StaticToken("").FreshToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}
