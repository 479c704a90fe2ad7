package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// FFmpegOptions configures ffmpeg-backed capture.
type FFmpegOptions struct {
	Binary string
	Width  int
	Height int
	FPS    int
	Logger *slog.Logger
}

// FFmpegSource runs ffmpeg and reads an MJPEG stream from its stdout. A
// background reader keeps only the newest frame so Read never blocks.
type FFmpegSource struct {
	descriptor string
	kind       Kind
	opts       FFmpegOptions
	logger     *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	frames  chan []byte
	done    chan struct{}
	exitErr error
	open    bool
}

// NewFFmpegSource creates an unopened ffmpeg source.
func NewFFmpegSource(descriptor string, kind Kind, opts FFmpegOptions) *FFmpegSource {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSource{
		descriptor: descriptor,
		kind:       kind,
		opts:       opts,
		logger:     logger.With("component", "ffmpeg", "source", descriptor),
	}
}

// Kind returns the source kind.
func (s *FFmpegSource) Kind() Kind { return s.kind }

// args builds the ffmpeg command line for the source kind.
func (s *FFmpegSource) args() []string {
	return append([]string{"-hide_banner", "-nostats", "-loglevel", "error"}, s.inputOutputArgs()...)
}

func (s *FFmpegSource) inputOutputArgs() []string {
	fps := strconv.Itoa(s.opts.FPS)
	out := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}

	switch s.kind {
	case KindNetwork:
		var in []string
		if len(s.descriptor) > 7 && s.descriptor[:7] == "rtsp://" {
			in = append(in, "-rtsp_transport", "tcp")
		}
		in = append(in, "-i", s.descriptor, "-r", fps)
		return append(in, out...)
	case KindDevice:
		in := []string{"-f", "v4l2"}
		if s.opts.Width > 0 && s.opts.Height > 0 {
			in = append(in, "-video_size", fmt.Sprintf("%dx%d", s.opts.Width, s.opts.Height))
		}
		in = append(in, "-framerate", fps, "-i", devicePath(s.descriptor))
		return append(in, out...)
	default:
		// -re paces file playback at its native frame rate
		return append([]string{"-re", "-i", s.descriptor, "-r", fps}, out...)
	}
}

// Open starts ffmpeg. It fails only when the process cannot be started;
// a stream that later dies shows up as a closed source.
func (s *FFmpegSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		select {
		case <-s.done:
			// process died on its own; release it and start again
			s.cancel()
			s.open = false
		default:
			return nil
		}
	}

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, s.opts.Binary, s.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stdout pipe: %v", ErrSourceUnavailable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stderr pipe: %v", ErrSourceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: start ffmpeg: %v", ErrSourceUnavailable, err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.frames = make(chan []byte, 1)
	s.done = make(chan struct{})
	s.exitErr = nil
	s.open = true

	go drain(stderr, s.logger)
	go s.readLoop(cmd, stdout, s.frames, s.done)

	s.logger.Info("capture started", "kind", s.kind.String())
	return nil
}

// IsOpen reports whether ffmpeg is still producing frames.
func (s *FFmpegSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	select {
	case <-s.done:
		// a finished file is still open until its EOF has been read
		return s.kind == KindFile && s.exitErr == nil
	default:
		return true
	}
}

// Read returns the newest decoded frame.
func (s *FFmpegSource) Read() (image.Image, error) {
	s.mu.Lock()
	frames, done, open := s.frames, s.done, s.open
	s.mu.Unlock()

	if !open {
		return nil, ErrFrameRead
	}

	select {
	case data := <-frames:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrFrameRead, err)
		}
		return img, nil
	default:
	}

	select {
	case <-done:
		s.mu.Lock()
		exitErr := s.exitErr
		s.mu.Unlock()
		if s.kind == KindFile && exitErr == nil {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: ffmpeg exited: %v", ErrFrameRead, exitErr)
	default:
		return nil, ErrNoFrame
	}
}

// Rewind restarts playback of a file from its first frame.
func (s *FFmpegSource) Rewind() error {
	if err := s.Close(); err != nil {
		return err
	}
	return s.Open(context.Background())
}

// Close stops ffmpeg and waits for it to exit.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *FFmpegSource) readLoop(cmd *exec.Cmd, stdout io.Reader, frames chan []byte, done chan struct{}) {
	defer close(done)

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&buffer)
				if frame == nil {
					break
				}
				offerLatest(frames, frame)
			}
		}
		if err != nil {
			exitErr := cmd.Wait()
			if err != io.EOF {
				exitErr = err
			}
			s.mu.Lock()
			s.exitErr = exitErr
			s.mu.Unlock()
			if exitErr != nil {
				s.logger.Debug("capture ended", "error", exitErr)
			}
			return
		}
	}
}

// offerLatest replaces any unread frame with frame.
func offerLatest(frames chan []byte, frame []byte) {
	select {
	case frames <- frame:
		return
	default:
	}
	select {
	case <-frames:
	default:
	}
	select {
	case frames <- frame:
	default:
	}
}

// maxStderrLine bounds one buffered stderr line; longer lines are cut.
const maxStderrLine = 4096

// drain consumes r until EOF, logging each non-empty line. ffmpeg must
// never block on a full stderr pipe, so nothing here can stop reading
// early. Lines end at '\n' or '\r' because progress output uses '\r'.
func drain(r io.Reader, logger *slog.Logger) {
	w := &stderrLogger{logger: logger}
	io.Copy(w, r)
	w.flush()
}

type stderrLogger struct {
	logger *slog.Logger
	line   []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	for _, b := range p {
		switch {
		case b == '\n' || b == '\r':
			w.flush()
		case len(w.line) < maxStderrLine:
			w.line = append(w.line, b)
		}
	}
	return len(p), nil
}

func (w *stderrLogger) flush() {
	if line := bytes.TrimSpace(w.line); len(line) > 0 {
		w.logger.Warn("ffmpeg", "stderr", string(line))
	}
	w.line = w.line[:0]
}

// extractJPEGFrame cuts the first complete JPEG (FFD8..FFD9) out of buffer.
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := bytes.Index(*buffer, []byte{0xFF, 0xD8})
	if startIdx == -1 {
		return nil
	}

	rel := bytes.Index((*buffer)[startIdx+2:], []byte{0xFF, 0xD9})
	if rel == -1 {
		// drop garbage before the start marker
		*buffer = (*buffer)[startIdx:]
		return nil
	}
	endIdx := startIdx + 2 + rel + 2

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
