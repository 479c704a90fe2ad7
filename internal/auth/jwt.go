package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "tripwatch"
	audience = "tripwatch-api"

	// ScopeView allows reading camera state, alerts and video.
	ScopeView = "cameras:view"
	// ScopeControl allows changing camera state.
	ScopeControl = "cameras:control"

	// ViewTokenTTL is the lifetime of view-only tokens handed to <img>
	// tags and WebSocket URLs, where they may end up in logs.
	ViewTokenTTL = 5 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingScope = errors.New("token lacks required scope")
)

// Claims identifies the user and what the token may do.
type Claims struct {
	Username string   `json:"username"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// tokenIssuer signs and verifies HS256 tokens.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// newTokenIssuer creates an issuer. An empty secret gets a random one,
// which invalidates tokens on every restart.
func newTokenIssuer(secret string, ttl time.Duration) *tokenIssuer {
	if secret == "" {
		b := make([]byte, 32)
		rand.Read(b)
		secret = hex.EncodeToString(b)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// issue signs a token for username. A zero ttl uses the issuer default.
func (t *tokenIssuer) issue(username string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Username: username,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// verify parses a token and checks signature, issuer, audience and expiry.
func (t *tokenIssuer) verify(signed string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
