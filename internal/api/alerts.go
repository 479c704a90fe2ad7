package api

import (
	"net/http"
	"strconv"
	"time"

	"tripwatch/internal/ws"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

type alertResponse struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	BBox       [4]int    `json:"bbox"`
}

// ListAlertsHandler returns alert history from the durable store, newest
// first. Query: limit, camera_id, since (RFC 3339).
func (h *Handlers) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "alert history not configured")
		return
	}

	q := r.URL.Query()
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	var since *time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = &t
	}

	records, err := h.store.ListAlerts(r.Context(), q.Get("camera_id"), since, limit)
	if err != nil {
		h.logger.Error("list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]alertResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, alertResponse{
			ID:         rec.ID,
			CameraID:   rec.CameraID,
			CameraName: rec.CameraName,
			Message:    rec.Message,
			Timestamp:  rec.Timestamp,
			BBox:       [4]int{rec.Box.X, rec.Box.Y, rec.Box.Width, rec.Box.Height},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// LiveAlertsHandler returns the in-memory most-recent-first alert log.
func (h *Handlers) LiveAlertsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	alerts := h.control.Alerts(limit)
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{
			ID:         a.ID,
			CameraID:   a.CameraID,
			CameraName: a.CameraName,
			Message:    a.Message,
			Timestamp:  a.Timestamp,
			BBox:       [4]int{a.Box.Min.X, a.Box.Min.Y, a.Box.Dx(), a.Box.Dy()},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// AlertsSocketHandler pushes alerts over a WebSocket as they happen.
func (h *Handlers) AlertsSocketHandler(w http.ResponseWriter, r *http.Request) {
	h.live.Serve(w, r, ws.AlertsTopic)
}

func parseLimit(s string) (int, bool) {
	if s == "" {
		return defaultAlertLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxAlertLimit), true
}
