package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("refresh token revoked or expired")
	ErrNoRefreshToken     = errors.New("no stored refresh token")
	ErrMalformedToken     = errors.New("malformed id token")
)

// CredentialProvider returns a freshly minted bearer token on every call.
type CredentialProvider interface {
	FreshToken(ctx context.Context) (string, error)
}

// Identity is a signed-in user. It is itself a CredentialProvider.
type Identity struct {
	UID      string
	Email    string
	Provider CredentialProvider
}

// FreshToken delegates to the identity's provider.
func (i *Identity) FreshToken(ctx context.Context) (string, error) {
	if i == nil || i.Provider == nil {
		return "", ErrNoRefreshToken
	}
	return i.Provider.FreshToken(ctx)
}

// Same reports whether two identities belong to the same user.
func (i *Identity) Same(other *Identity) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.UID == other.UID
}

// String returns the email, or the uid when no email is known.
func (i *Identity) String() string {
	if i == nil {
		return "<signed out>"
	}
	if i.Email != "" {
		return i.Email
	}
	return i.UID
}

// StaticToken is a provider that always returns the same token.
type StaticToken string

func (t StaticToken) FreshToken(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoRefreshToken
	}
	return string(t), nil
}

// Claims is the subset of id token claims the client reads.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
}

// UID returns user_id, falling back to sub.
func (c Claims) UID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// ParseClaims reads the payload of a JWT without verifying its signature.
// Verification is the backend's job; the client only needs uid and email.
func ParseClaims(idToken string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return claims, nil
}
