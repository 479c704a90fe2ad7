// Package auth protects the control API with a single configured user and
// JWT bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Options configures an Authenticator. Password may be plaintext or a
// bcrypt hash.
type Options struct {
	Enabled     bool
	Username    string
	Password    string
	JWTSecret   string
	TokenExpiry time.Duration
}

// Authenticator handles user authentication
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	tokens       *tokenIssuer
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(opts Options) (*Authenticator, error) {
	a := &Authenticator{
		enabled:    opts.Enabled,
		username:   opts.Username,
		tokens:     newTokenIssuer(opts.JWTSecret, opts.TokenExpiry),
	}
	if a.username == "" {
		a.username = "admin"
	}
	if !opts.Enabled {
		return a, nil
	}

	if opts.Password == "" {
		return nil, errors.New("auth: password required when enabled")
	}
	if isBcryptHash(opts.Password) {
		a.passwordHash = []byte(opts.Password)
		return a, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a.passwordHash = hash
	return a, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && strings.HasPrefix(s, "$2")
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a JWT token
func (a *Authenticator) Authenticate(username, password string) (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, ErrAuthDisabled
	}

	if username != a.username {
		return "", time.Time{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	return a.tokens.issue(username, []string{ScopeView, ScopeControl}, 0)
}

// IssueViewToken trades a valid token for a short-lived view-only one,
// suitable for URLs.
func (a *Authenticator) IssueViewToken(claims *Claims) (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, ErrAuthDisabled
	}
	if claims == nil || !claims.HasScope(ScopeView) {
		return "", time.Time{}, ErrMissingScope
	}
	return a.tokens.issue(claims.Username, []string{ScopeView}, ViewTokenTTL)
}

// ValidateToken validates a JWT token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.tokens.verify(token)
}

// HashPassword creates a bcrypt hash of a password (utility function)
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
