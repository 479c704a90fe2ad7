// Package api is the HTTP control surface: camera control, alert history,
// live video and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tripwatch/internal/auth"
	"tripwatch/internal/camera"
	"tripwatch/internal/database"
	"tripwatch/internal/orchestrator"
	"tripwatch/internal/tripwire"
)

// Control is the orchestrator as seen by the API.
type Control interface {
	Cameras() []camera.Status
	Camera(id string) (camera.Status, error)
	Toggle(ctx context.Context, id string) (camera.State, error)
	SetSensitivity(id string, value int) error
	SetTripwireLine(id string, line *tripwire.Line) error
	CaptureSnapshot(ctx context.Context, id string) (string, error)
	Alerts(limit int) []camera.Alert
}

// AlertStore is the durable alert history.
type AlertStore interface {
	ListAlerts(ctx context.Context, cameraID string, since *time.Time, limit int) ([]*database.AlertRecord, error)
}

// FrameServer serves annotated frames over HTTP.
type FrameServer interface {
	ServeStream(w http.ResponseWriter, r *http.Request, cameraID string)
	ServeSnapshot(w http.ResponseWriter, r *http.Request, cameraID string)
}

// LiveServer upgrades requests to WebSocket subscriptions.
type LiveServer interface {
	Serve(w http.ResponseWriter, r *http.Request, topic string)
}

// Handlers holds the dependencies of every route.
type Handlers struct {
	control  Control
	store    AlertStore
	frames   FrameServer
	live     LiveServer
	auth     *auth.Authenticator
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Deps are the collaborators wired into the router. Store, Frames, Live
// and Gatherer may be nil; their routes then answer 503 or are omitted.
type Deps struct {
	Control  Control
	Store    AlertStore
	Frames   FrameServer
	Live     LiveServer
	Auth     *auth.Authenticator
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewHandlers creates the route handlers.
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{
		control:  d.Control,
		store:    d.Store,
		frames:   d.Frames,
		live:     d.Live,
		auth:     d.Auth,
		gatherer: d.Gatherer,
		logger:   d.Logger.With("component", "api"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeControlError maps domain errors to status codes.
func (h *Handlers) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownCamera):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, camera.ErrInvalidSensitivity), errors.Is(err, tripwire.ErrInvalidLine):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("control call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
