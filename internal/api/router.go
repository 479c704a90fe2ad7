package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripwatch/internal/middleware"
)

// NewRouter registers every route. /health, /metrics and /api/login are
// public; everything else sits behind the auth middleware.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(h.logger))

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if h.auth != nil {
		r.HandleFunc("/api/login", h.LoginHandler).Methods(http.MethodPost)
	}

	protected := r.NewRoute().Subrouter()
	if h.auth != nil {
		protected.Use(middleware.AuthMiddleware(h.auth))
	}

	if h.auth != nil {
		protected.HandleFunc("/api/token/view", h.ViewTokenHandler).Methods(http.MethodGet)
	}
	protected.HandleFunc("/api/cameras", h.ListCamerasHandler).Methods(http.MethodGet)
	protected.HandleFunc("/api/cameras/{id}", h.GetCameraHandler).Methods(http.MethodGet)
	protected.HandleFunc("/api/cameras/{id}/toggle", h.ToggleCameraHandler).Methods(http.MethodPost)
	protected.HandleFunc("/api/cameras/{id}/sensitivity", h.SetSensitivityHandler).Methods(http.MethodPut)
	protected.HandleFunc("/api/cameras/{id}/tripwire", h.SetTripwireHandler).Methods(http.MethodPut)
	protected.HandleFunc("/api/cameras/{id}/tripwire", h.ClearTripwireHandler).Methods(http.MethodDelete)
	protected.HandleFunc("/api/cameras/{id}/snapshot", h.CaptureSnapshotHandler).Methods(http.MethodPost)
	protected.HandleFunc("/api/alerts", h.ListAlertsHandler).Methods(http.MethodGet)
	protected.HandleFunc("/api/alerts/live", h.LiveAlertsHandler).Methods(http.MethodGet)

	if h.frames != nil {
		protected.HandleFunc("/video/stream/{id}", h.StreamHandler).Methods(http.MethodGet)
		protected.HandleFunc("/video/snapshot/{id}", h.FrameSnapshotHandler).Methods(http.MethodGet)
	}
	if h.live != nil {
		protected.HandleFunc("/ws/alerts", h.AlertsSocketHandler).Methods(http.MethodGet)
		protected.HandleFunc("/ws/frames/{id}", h.FramesSocketHandler).Methods(http.MethodGet)
	}

	return r
}
