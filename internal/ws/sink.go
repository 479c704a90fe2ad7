package ws

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"

	"tripwatch/internal/camera"
)

// EmitAlert pushes alert to every alerts subscriber.
func (h *Hub) EmitAlert(ctx context.Context, alert camera.Alert) error {
	if !h.HasClients(AlertsTopic) {
		return nil
	}
	data, err := json.Marshal(NewAlertMessage(alert))
	if err != nil {
		return fmt.Errorf("marshal alert message: %w", err)
	}
	h.Broadcast(AlertsTopic, data)
	return nil
}

// EmitFrame pushes frame to the camera's subscribers. Frames are only
// encoded when someone is watching.
func (h *Hub) EmitFrame(cameraID string, frame image.Image) {
	topic := FramesTopic(cameraID)
	if !h.HasClients(topic) {
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 70}); err != nil {
		h.logger.Warn("encode frame", "camera_id", cameraID, "error", err)
		return
	}

	b := frame.Bounds()
	msg := NewFrameMessage(cameraID, b.Dx(), b.Dy(), base64.StdEncoding.EncodeToString(buf.Bytes()))
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("marshal frame message", "camera_id", cameraID, "error", err)
		return
	}
	h.Broadcast(topic, data)
}
