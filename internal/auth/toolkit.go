package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/chatpulse/internal/config"
	"github.com/rickgao/chatpulse/internal/storage"
)

// ProviderError is an error response from the identity provider.
type ProviderError struct {
	StatusCode int
	Message    string // Provider error code, e.g. INVALID_PASSWORD
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps provider error codes onto the package sentinels.
func (e *ProviderError) Unwrap() error {
	code, _, _ := strings.Cut(e.Message, " ")
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "INVALID_CUSTOM_TOKEN", "USER_DISABLED":
		return ErrInvalidCredentials
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "MISSING_REFRESH_TOKEN":
		return ErrTokenRevoked
	}
	return nil
}

// IdentityToolkit talks to the identity provider REST API.
type IdentityToolkit struct {
	apiKey      string
	identityURL string
	tokenURL    string
	httpClient  *http.Client
	store       storage.Store
	logger      *slog.Logger
}

// Option configures an IdentityToolkit.
type Option func(*IdentityToolkit)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *IdentityToolkit) {
		t.httpClient = hc
	}
}

// WithStore persists the refresh token and email across runs.
func WithStore(s storage.Store) Option {
	return func(t *IdentityToolkit) {
		t.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *IdentityToolkit) {
		t.logger = logger
	}
}

// NewIdentityToolkit creates a client for the identity provider.
func NewIdentityToolkit(cfg config.AuthConfig, opts ...Option) *IdentityToolkit {
	t := &IdentityToolkit{
		apiKey:      cfg.APIKey,
		identityURL: strings.TrimSuffix(cfg.IdentityURL, "/"),
		tokenURL:    cfg.TokenURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: slog.Default(),
	}
	if t.identityURL == "" {
		t.identityURL = config.DefaultIdentityURL
	}
	if t.tokenURL == "" {
		t.tokenURL = config.DefaultTokenURL
	}

	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "auth")

	return t
}

type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresIn    string `json:"expires_in"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword signs in with email and password.
func (t *IdentityToolkit) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := t.postJSON(ctx, "/accounts:signInWithPassword", body, &resp); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if resp.Email == "" {
		resp.Email = email
	}
	return t.establish(ctx, resp)
}

// SignInWithCustomToken signs in with an admin-issued login token.
func (t *IdentityToolkit) SignInWithCustomToken(ctx context.Context, token string) (*Identity, error) {
	body := map[string]any{
		"token":             token,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := t.postJSON(ctx, "/accounts:signInWithCustomToken", body, &resp); err != nil {
		return nil, fmt.Errorf("sign in with custom token: %w", err)
	}
	return t.establish(ctx, resp)
}

// Resume restores the identity from the stored refresh token.
func (t *IdentityToolkit) Resume(ctx context.Context) (*Identity, error) {
	if t.store == nil {
		return nil, ErrNoRefreshToken
	}

	refreshToken, err := t.store.Get(ctx, storage.KeyToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	r := &refresher{toolkit: t, refreshToken: refreshToken}
	idToken, err := r.FreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}

	claims, err := ParseClaims(idToken)
	if err != nil {
		return nil, err
	}

	t.logger.Info("session resumed", "uid", claims.UID())
	return &Identity{UID: claims.UID(), Email: claims.Email, Provider: r}, nil
}

// SignOut forgets the stored session.
func (t *IdentityToolkit) SignOut(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Delete(ctx, storage.KeyToken); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if err := t.store.Delete(ctx, storage.KeyEmail); err != nil {
		return fmt.Errorf("delete email: %w", err)
	}
	return nil
}

// establish builds an Identity from a sign-in response and persists it.
func (t *IdentityToolkit) establish(ctx context.Context, resp signInResponse) (*Identity, error) {
	if resp.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	uid, email := resp.LocalID, resp.Email
	if uid == "" || email == "" {
		claims, err := ParseClaims(resp.IDToken)
		if err != nil {
			return nil, err
		}
		if uid == "" {
			uid = claims.UID()
		}
		if email == "" {
			email = claims.Email
		}
	}

	t.persist(ctx, storage.KeyToken, resp.RefreshToken)
	if email != "" {
		t.persist(ctx, storage.KeyEmail, email)
	}

	t.logger.Info("signed in", "uid", uid, "email", email)
	return &Identity{
		UID:      uid,
		Email:    email,
		Provider: &refresher{toolkit: t, refreshToken: resp.RefreshToken},
	}, nil
}

func (t *IdentityToolkit) persist(ctx context.Context, key, value string) {
	if t.store == nil {
		return
	}
	if err := t.store.Set(ctx, key, value); err != nil {
		t.logger.Warn("failed to persist session", "key", key, "error", err)
	}
}

// exchange trades a refresh token for a new id token.
func (t *IdentityToolkit) exchange(ctx context.Context, refreshToken string) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	endpoint := t.tokenURL + "?" + url.Values{"key": {t.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := t.do(req, &resp); err != nil {
		return tokenResponse{}, err
	}
	if resp.IDToken == "" {
		return tokenResponse{}, ErrMalformedToken
	}
	return resp, nil
}

func (t *IdentityToolkit) postJSON(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := t.identityURL + path + "?" + url.Values{"key": {t.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req, result)
}

func (t *IdentityToolkit) do(req *http.Request, result any) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		perr := &ProviderError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
			perr.Message = er.Error.Message
		}
		return perr
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// refresher exchanges its refresh token on every call and keeps the
// rotated token.
type refresher struct {
	toolkit *IdentityToolkit

	mu           sync.Mutex
	refreshToken string
}

func (r *refresher) FreshToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp, err := r.toolkit.exchange(ctx, r.refreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}

	if resp.RefreshToken != "" && resp.RefreshToken != r.refreshToken {
		r.refreshToken = resp.RefreshToken
		r.toolkit.persist(ctx, storage.KeyToken, resp.RefreshToken)
	}
	return resp.IDToken, nil
}
