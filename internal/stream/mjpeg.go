// Package stream serves annotated camera frames as MJPEG streams and
// single JPEG snapshots.
package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
)

const jpegQuality = 80

// mjpegStream holds the latest frame of one camera and its viewers.
type mjpegStream struct {
	cameraID string

	frameMu sync.RWMutex
	latest  image.Image
	encoded []byte
	seq     uint64

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
}

// Manager fans annotated frames out to MJPEG viewers. It is the image sink
// for the HTTP surface.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]*mjpegStream
	logger  *slog.Logger
}

// NewManager creates a stream manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		streams: make(map[string]*mjpegStream),
		logger:  logger.With("component", "mjpeg"),
	}
}

func (m *Manager) stream(cameraID string) *mjpegStream {
	m.mu.RLock()
	s := m.streams[cameraID]
	m.mu.RUnlock()
	if s != nil {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.streams[cameraID]; s == nil {
		s = &mjpegStream{cameraID: cameraID, clients: make(map[chan []byte]struct{})}
		m.streams[cameraID] = s
	}
	return s
}

// EmitFrame records frame as the camera's latest. It is only encoded here
// when a viewer is connected; otherwise encoding waits for a snapshot
// request.
func (m *Manager) EmitFrame(cameraID string, frame image.Image) {
	s := m.stream(cameraID)

	s.frameMu.Lock()
	s.latest = frame
	s.encoded = nil
	s.seq++
	s.frameMu.Unlock()

	s.clientsMu.RLock()
	watching := len(s.clients) > 0
	s.clientsMu.RUnlock()
	if !watching {
		return
	}

	data, err := s.currentJPEG()
	if err != nil {
		m.logger.Warn("encode frame", "camera_id", cameraID, "error", err)
		return
	}

	s.clientsMu.RLock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
	s.clientsMu.RUnlock()
}

// FrameSeq returns how many frames a camera has emitted.
func (m *Manager) FrameSeq(cameraID string) uint64 {
	s := m.stream(cameraID)
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.seq
}

// CurrentJPEG returns the camera's latest frame as JPEG, nil if none.
func (m *Manager) CurrentJPEG(cameraID string) ([]byte, error) {
	return m.stream(cameraID).currentJPEG()
}

func (s *mjpegStream) currentJPEG() ([]byte, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	if s.latest == nil {
		return nil, nil
	}
	if s.encoded == nil {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, s.latest, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, err
		}
		s.encoded = buf.Bytes()
	}
	return s.encoded, nil
}

// ServeStream writes the camera's frames as multipart MJPEG until the
// client disconnects.
func (m *Manager) ServeStream(w http.ResponseWriter, r *http.Request, cameraID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	s := m.stream(cameraID)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientCh := make(chan []byte, 5)
	s.clientsMu.Lock()
	s.clients[clientCh] = struct{}{}
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientCh)
		s.clientsMu.Unlock()
	}()

	m.logger.Info("client connected", "camera_id", cameraID, "remote", r.RemoteAddr)

	// send what we have so the viewer is not blank until the next tick
	if data, err := s.currentJPEG(); err == nil && data != nil {
		writePart(w, data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			m.logger.Info("client disconnected", "camera_id", cameraID)
			return
		case frame := <-clientCh:
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// ServeSnapshot writes the camera's latest annotated frame as one JPEG.
func (m *Manager) ServeSnapshot(w http.ResponseWriter, r *http.Request, cameraID string) {
	data, err := m.CurrentJPEG(cameraID)
	if err != nil {
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(data)
}
