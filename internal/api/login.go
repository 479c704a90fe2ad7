package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tripwatch/internal/auth"
	"tripwatch/internal/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginHandler exchanges credentials for a bearer token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := h.auth.Authenticate(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrAuthDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.logger.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, err.Error())
	case err != nil:
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
	}
}

// ViewTokenHandler returns a short-lived view-only token for embedding in
// stream and WebSocket URLs.
func (h *Handlers) ViewTokenHandler(w http.ResponseWriter, r *http.Request) {
	token, expiresAt, err := h.auth.IssueViewToken(middleware.GetUserFromContext(r.Context()))
	switch {
	case errors.Is(err, auth.ErrAuthDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrMissingScope):
		writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		h.logger.Error("issue view token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
	}
}

// HealthHandler reports liveness and how many cameras are running.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	cams := h.control.Cameras()
	running := 0
	for _, c := range cams {
		if c.State == "running" {
			running++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cameras": len(cams),
		"running": running,
	})
}
