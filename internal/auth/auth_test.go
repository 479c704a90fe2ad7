package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateIssuesValidToken(t *testing.T) {
	a, err := NewAuthenticator(Options{Enabled: true, Username: "ops", Password: "s3cret", JWTSecret: "k"})
	require.NoError(t, err)

	token, expires, err := a.Authenticate("ops", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expires, time.Minute)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	a, err := NewAuthenticator(Options{Enabled: true, Username: "ops", Password: "s3cret"})
	require.NoError(t, err)

	_, _, err = a.Authenticate("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Authenticate("root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateAcceptsBcryptHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	a, err := NewAuthenticator(Options{Enabled: true, Password: hash})
	require.NoError(t, err)
	_, _, err = a.Authenticate("admin", "hunter2")
	assert.NoError(t, err)
}

func TestDisabledAuthenticator(t *testing.T) {
	a, err := NewAuthenticator(Options{})
	require.NoError(t, err)
	assert.False(t, a.IsEnabled())

	_, _, err = a.Authenticate("admin", "x")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestEnabledWithoutPasswordFails(t *testing.T) {
	_, err := NewAuthenticator(Options{Enabled: true})
	assert.Error(t, err)
}

func TestValidateTokenErrors(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tokens := newTokenIssuer("k", time.Hour)
	tokens.now = func() time.Time { return now }

	signed, _, err := tokens.issue("ops", []string{ScopeView}, 0)
	require.NoError(t, err)
	_, err = tokens.verify(signed)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = tokens.verify(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := newTokenIssuer("other", time.Hour)
	foreign, _, err := other.issue("ops", []string{ScopeView}, 0)
	require.NoError(t, err)
	_, err = newTokenIssuer("k", time.Hour).verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginTokenCarriesAllScopes(t *testing.T) {
	a, err := NewAuthenticator(Options{Enabled: true, Username: "ops", Password: "pw", JWTSecret: "k"})
	require.NoError(t, err)

	token, _, err := a.Authenticate("ops", "pw")
	require.NoError(t, err)
	claims, err := a.ValidateToken(token)
	require.NoError(t, err)

	assert.True(t, claims.HasScope(ScopeView))
	assert.True(t, claims.HasScope(ScopeControl))
	assert.Equal(t, "ops", claims.Subject)
}

func TestIssueViewToken(t *testing.T) {
	a, err := NewAuthenticator(Options{Enabled: true, Username: "ops", Password: "pw", JWTSecret: "k"})
	require.NoError(t, err)
	token, _, err := a.Authenticate("ops", "pw")
	require.NoError(t, err)
	claims, err := a.ValidateToken(token)
	require.NoError(t, err)

	view, expires, err := a.IssueViewToken(claims)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(ViewTokenTTL), expires, time.Minute)

	viewClaims, err := a.ValidateToken(view)
	require.NoError(t, err)
	assert.True(t, viewClaims.HasScope(ScopeView))
	assert.False(t, viewClaims.HasScope(ScopeControl))

	_, _, err = a.IssueViewToken(&Claims{Username: "ops"})
	assert.ErrorIs(t, err, ErrMissingScope)
}
