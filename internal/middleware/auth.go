// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tripwatch/internal/auth"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey ContextKey = "user"
)

// AuthMiddleware creates an HTTP middleware for JWT authentication. The
// token comes from the Authorization header or, for clients that cannot
// set headers (img tags, WebSockets), the token query parameter.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticator.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, errMsg := bearerToken(r)
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			claims, err := authenticator.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					writeUnauthorized(w, "token has expired")
				} else {
					writeUnauthorized(w, "invalid token")
				}
				return
			}

			if !claims.HasScope(requiredScope(r.Method)) {
				writeError(w, http.StatusForbidden, "token lacks required scope")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, ""
		}
		return "", "missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}

// requiredScope maps a request method to the scope it needs: reads need
// view, everything else needs control.
func requiredScope(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return auth.ScopeView
	default:
		return auth.ScopeControl
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error": "` + msg + `"}`))
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
