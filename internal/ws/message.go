package ws

import (
	"time"

	"tripwatch/internal/camera"
)

// AlertMessage is pushed on AlertsTopic for every alert.
type AlertMessage struct {
	Type       string    `json:"type"` // "alert"
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	BBox       []int     `json:"bbox"` // [x, y, w, h] in pixels
}

// NewAlertMessage converts an alert for the wire.
func NewAlertMessage(a camera.Alert) *AlertMessage {
	return &AlertMessage{
		Type:       "alert",
		ID:         a.ID,
		CameraID:   a.CameraID,
		CameraName: a.CameraName,
		Message:    a.Message,
		Timestamp:  a.Timestamp,
		BBox:       []int{a.Box.Min.X, a.Box.Min.Y, a.Box.Dx(), a.Box.Dy()},
	}
}

// FrameMessage represents a video frame broadcast
type FrameMessage struct {
	Type        string    `json:"type"` // "frame"
	CameraID    string    `json:"camera_id"`
	Timestamp   time.Time `json:"timestamp"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	Frame       string    `json:"frame"` // Base64 encoded JPEG frame
}

// NewFrameMessage creates a new frame message for live streaming
func NewFrameMessage(cameraID string, frameWidth, frameHeight int, frameBase64 string) *FrameMessage {
	return &FrameMessage{
		Type:        "frame",
		CameraID:    cameraID,
		Timestamp:   time.Now(),
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
		Frame:       frameBase64,
	}
}
