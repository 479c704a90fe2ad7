package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tripwatch/internal/camera"
	"tripwatch/internal/tripwire"
	"tripwatch/internal/ws"
)

type toggleResponse struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Warning string `json:"warning,omitempty"`
}

type sensitivityRequest struct {
	Value *int `json:"value"`
}

type snapshotResponse struct {
	ID string `json:"id"`
}

// ListCamerasHandler returns every camera's status.
func (h *Handlers) ListCamerasHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.control.Cameras())
}

// GetCameraHandler returns one camera's status.
func (h *Handlers) GetCameraHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.control.Camera(mux.Vars(r)["id"])
	if err != nil {
		h.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ToggleCameraHandler starts or stops a camera. A start whose source could
// not be opened still succeeds, with a warning: the camera keeps retrying.
func (h *Handlers) ToggleCameraHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := h.control.Toggle(r.Context(), id)

	resp := toggleResponse{ID: id, State: state.String()}
	if err != nil {
		if !errors.Is(err, camera.ErrSourceUnavailable) {
			h.writeControlError(w, err)
			return
		}
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetSensitivityHandler sets the minimum motion area.
func (h *Handlers) SetSensitivityHandler(w http.ResponseWriter, r *http.Request) {
	var req sensitivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"value\": <int>}")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.control.SetSensitivity(id, *req.Value); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeStatus(w, id)
}

// SetTripwireHandler replaces the tripwire line.
func (h *Handlers) SetTripwireHandler(w http.ResponseWriter, r *http.Request) {
	var line tripwire.Line
	if err := json.NewDecoder(r.Body).Decode(&line); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"x1\",\"y1\",\"x2\",\"y2\"}")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.control.SetTripwireLine(id, &line); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeStatus(w, id)
}

// ClearTripwireHandler removes the tripwire line.
func (h *Handlers) ClearTripwireHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.control.SetTripwireLine(id, nil); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeStatus(w, id)
}

// CaptureSnapshotHandler stores the camera's latest frame.
func (h *Handlers) CaptureSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := h.control.CaptureSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeControlError(w, err)
		return
	}
	if id == "" {
		writeError(w, http.StatusServiceUnavailable, "no frame available")
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse{ID: id})
}

// StreamHandler serves the annotated MJPEG stream.
func (h *Handlers) StreamHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.knownCamera(w, r)
	if !ok {
		return
	}
	h.frames.ServeStream(w, r, id)
}

// FrameSnapshotHandler serves the latest annotated frame as JPEG.
func (h *Handlers) FrameSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.knownCamera(w, r)
	if !ok {
		return
	}
	h.frames.ServeSnapshot(w, r, id)
}

// FramesSocketHandler pushes one camera's frames over a WebSocket.
func (h *Handlers) FramesSocketHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.knownCamera(w, r)
	if !ok {
		return
	}
	h.live.Serve(w, r, ws.FramesTopic(id))
}

func (h *Handlers) knownCamera(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := h.control.Camera(id); err != nil {
		h.writeControlError(w, err)
		return "", false
	}
	return id, true
}

func (h *Handlers) writeStatus(w http.ResponseWriter, id string) {
	st, err := h.control.Camera(id)
	if err != nil {
		h.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
