package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwatch/internal/auth"
)

func protected(t *testing.T, a *auth.Authenticator) http.Handler {
	t.Helper()
	return AuthMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := "anonymous"
		if c := GetUserFromContext(r.Context()); c != nil {
			user = c.Username
		}
		w.Write([]byte(user))
	}))
}

func TestAuthMiddleware(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Options{Enabled: true, Username: "ops", Password: "pw", JWTSecret: "k"})
	require.NoError(t, err)
	token, _, err := a.Authenticate("ops", "pw")
	require.NoError(t, err)
	h := protected(t, a)

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bad format", header: "Token abc", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer abc", status: http.StatusUnauthorized},
		{name: "header", header: "Bearer " + token, status: http.StatusOK, body: "ops"},
		{name: "query", query: "?token=" + token, status: http.StatusOK, body: "ops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cameras"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	protected(t, a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestAuthMiddlewareEnforcesScopes(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Options{Enabled: true, Username: "ops", Password: "pw", JWTSecret: "k"})
	require.NoError(t, err)
	full, _, err := a.Authenticate("ops", "pw")
	require.NoError(t, err)
	claims, err := a.ValidateToken(full)
	require.NoError(t, err)
	view, _, err := a.IssueViewToken(claims)
	require.NoError(t, err)
	h := protected(t, a)

	tests := []struct {
		name   string
		method string
		token  string
		status int
	}{
		{"view token reads", http.MethodGet, view, http.StatusOK},
		{"view token cannot control", http.MethodPost, view, http.StatusForbidden},
		{"view token cannot delete", http.MethodDelete, view, http.StatusForbidden},
		{"full token controls", http.MethodPut, full, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/cameras/cam1/toggle?token="+tt.token, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
