// Package camera runs one video feed through motion detection and tripwire
// evaluation, one frame per call to Process.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/gift"
	"github.com/google/uuid"

	"tripwatch/internal/config"
	"tripwatch/internal/metrics"
	"tripwatch/internal/motion"
	"tripwatch/internal/overlay"
	"tripwatch/internal/tripwire"
)

// ErrInvalidSensitivity is returned for sensitivity values that are not
// positive.
var ErrInvalidSensitivity = errors.New("sensitivity must be positive")

const (
	// blackFrameLimit is how many consecutive dark frames are tolerated
	// before a warning is logged.
	blackFrameLimit = 30
	// blackLevel is the brightest channel value still counted as black.
	blackLevel = 10
)

// State is the run state of an agent.
type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// FrameSink receives finished frames keyed by camera id.
type FrameSink interface {
	EmitFrame(cameraID string, frame image.Image)
}

// SnapshotSink stores an encoded frame and returns its identifier.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, cameraName string, ts time.Time, jpegData []byte) (string, error)
}

// Alert is raised when motion touches the tripwire. It is never modified
// after creation.
type Alert struct {
	ID         string          `json:"id"`
	CameraID   string          `json:"camera_id"`
	CameraName string          `json:"camera_name"`
	Message    string          `json:"message"`
	Timestamp  time.Time       `json:"timestamp"`
	Box        image.Rectangle `json:"box"`
}

// Status is a point-in-time view of an agent.
type Status struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Source      string         `json:"source"`
	State       string         `json:"state"`
	SourceOpen  bool           `json:"source_open"`
	Sensitivity int            `json:"sensitivity"`
	Tripwire    *tripwire.Line `json:"tripwire,omitempty"`
	FPS         int            `json:"fps"`
	LastFrame   time.Time      `json:"last_frame,omitempty"`
	LastAlert   time.Time      `json:"last_alert,omitempty"`
}

// Options carries agent dependencies. Zero fields get defaults.
type Options struct {
	Width     int
	Height    int
	Cooldown  time.Duration
	Sources   SourceFactory
	Frames    FrameSink
	Snapshots SnapshotSink
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
	Reopen    ReopenPolicy
}

// Agent owns one source, one motion detector and one tripwire evaluator.
// All methods are safe for concurrent use; a Process call holds the agent
// for its whole duration, so setters take effect on the next call.
type Agent struct {
	id     string
	name   string
	source string

	width, height int
	sources       SourceFactory
	frames        FrameSink
	snapshots     SnapshotSink
	metrics       *metrics.Metrics
	logger        *slog.Logger
	clock         func() time.Time

	mu          sync.Mutex
	active      bool
	src         Source
	detector    *motion.Detector
	evaluator   *tripwire.Evaluator
	line        *tripwire.Line
	sensitivity int
	fps         fpsCounter
	reopen      reopenState
	lastRaw     image.Image
	lastFrameAt time.Time
	blackFrames int
	blackWarned bool
}

// NewAgent creates a stopped agent for cam.
func NewAgent(cam config.Camera, opts Options) *Agent {
	if opts.Width <= 0 {
		opts.Width = config.DefaultFrameWidth
	}
	if opts.Height <= 0 {
		opts.Height = config.DefaultFrameHeight
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Frames == nil {
		opts.Frames = discardFrames{}
	}
	if opts.Sources == nil {
		opts.Sources = NewSourceFactory(FFmpegOptions{Width: opts.Width, Height: opts.Height, Logger: opts.Logger})
	}

	sensitivity := cam.Sensitivity
	if sensitivity <= 0 {
		sensitivity = config.DefaultSensitivity
	}

	var line *tripwire.Line
	if cam.Tripwire != nil {
		l := *cam.Tripwire
		line = &l
	}

	return &Agent{
		id:          cam.ID,
		name:        cam.Name,
		source:      cam.Source,
		width:       opts.Width,
		height:      opts.Height,
		sources:     opts.Sources,
		frames:      opts.Frames,
		snapshots:   opts.Snapshots,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "camera", "camera_id", cam.ID),
		clock:       opts.Clock,
		detector:    motion.NewDetector(motion.Config{MinArea: sensitivity}),
		evaluator:   tripwire.NewEvaluator(opts.Cooldown),
		line:        line,
		sensitivity: sensitivity,
		reopen:      reopenState{policy: opts.Reopen.withDefaults()},
	}
}

// ID returns the camera id.
func (a *Agent) ID() string { return a.id }

// Name returns the camera display name.
func (a *Agent) Name() string { return a.name }

// State returns the current run state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return StateRunning
	}
	return StateStopped
}

// Start opens the source and moves the agent to running. The agent is
// running even when the open fails: the error, wrapping
// ErrSourceUnavailable, is returned and Process keeps retrying the open
// with backoff. Starting a running agent does nothing.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		return nil
	}

	a.src = a.sources(a.source)
	a.active = true
	a.detector.Reset()
	a.fps = fpsCounter{}
	a.lastRaw = nil
	a.blackFrames, a.blackWarned = 0, false
	a.reopen.reset()
	a.metrics.SetRunning(a.id, true)

	if err := a.src.Open(ctx); err != nil {
		a.reopen.failed(a.clock())
		a.logger.Warn("source unavailable, will retry", "source", a.source, "error", err)
		if errors.Is(err, ErrSourceUnavailable) {
			return fmt.Errorf("camera %s: %w", a.id, err)
		}
		return fmt.Errorf("camera %s: %w: %v", a.id, ErrSourceUnavailable, err)
	}

	a.logger.Info("camera started", "source", a.source, "kind", a.src.Kind().String())
	return nil
}

// Stop releases the source, clears motion history and emits a blank frame
// so displays show the camera as off. Stopping a stopped agent does nothing.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}

	if err := a.src.Close(); err != nil {
		a.logger.Warn("close source", "error", err)
	}
	a.src = nil
	a.active = false
	a.detector.Reset()
	a.lastRaw = nil
	a.metrics.SetRunning(a.id, false)
	a.metrics.SetFPS(a.id, 0)

	a.frames.EmitFrame(a.id, overlay.Blank(a.width, a.height))
	a.logger.Info("camera stopped")
}

// Process advances the camera by one frame. It returns the alert raised on
// this frame, if any. It does nothing while stopped or while the source is
// closed, and it never blocks on the source.
func (a *Agent) Process(ctx context.Context) *Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active || a.src == nil {
		return nil
	}

	now := a.clock()
	if !a.src.IsOpen() && !a.tryReopen(ctx, now) {
		return nil
	}

	raw, err := a.read()
	if err != nil {
		a.handleReadError(err)
		return nil
	}

	frame := a.normalize(raw)
	a.lastRaw = raw
	a.lastFrameAt = now
	a.watchBlack(frame)

	annotated, regions := a.detector.Process(frame)
	decision := a.evaluator.Evaluate(a.line, regions, frame.Rect.Size(), now)

	tripwire.Draw(annotated, a.line, decision.Alert)
	overlay.DrawLabel(annotated, 10, 10, fmt.Sprintf("Sens: %d", a.sensitivity), overlay.White)
	overlay.DrawLabel(annotated, 10, 28, fmt.Sprintf("FPS: %d", a.fps.current), overlay.White)

	if a.fps.tick(now) {
		a.metrics.SetFPS(a.id, a.fps.current)
	}
	a.metrics.FrameProcessed(a.id)

	a.frames.EmitFrame(a.id, annotated)

	if !decision.Alert {
		return nil
	}

	a.metrics.Alert(a.id)
	alert := &Alert{
		ID:         uuid.New().String(),
		CameraID:   a.id,
		CameraName: a.name,
		Message:    fmt.Sprintf("Tripwire crossed on %s", a.name),
		Timestamp:  now,
		Box:        decision.Region.Box,
	}
	a.logger.Info("tripwire alert", "alert_id", alert.ID, "box", alert.Box.String())
	return alert
}

// SetSensitivity changes the minimum motion area from the next frame on.
func (a *Agent) SetSensitivity(value int) error {
	if value <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSensitivity, value)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sensitivity = value
	a.detector.SetMinArea(value)
	return nil
}

// SetTripwireLine replaces the tripwire from the next frame on. Nil
// removes it.
func (a *Agent) SetTripwireLine(line *tripwire.Line) error {
	var copied *tripwire.Line
	if line != nil {
		if err := line.Validate(); err != nil {
			return err
		}
		l := *line
		copied = &l
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.line = copied
	return nil
}

// TakeSnapshot stores the raw frame read by the latest successful Process
// call. It does not read from the source, so it never skips a frame of the
// main loop. An empty id and nil error mean there was no frame to store.
func (a *Agent) TakeSnapshot(ctx context.Context) (string, error) {
	a.mu.Lock()
	raw, ts := a.lastRaw, a.lastFrameAt
	a.mu.Unlock()

	if raw == nil || a.snapshots == nil {
		return "", nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raw, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	id, err := a.snapshots.SaveSnapshot(ctx, a.name, ts, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	a.metrics.Snapshot(a.id)
	a.logger.Info("snapshot saved", "snapshot", id)
	return id, nil
}

// Status reports the agent's current state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		ID:          a.id,
		Name:        a.name,
		Source:      a.source,
		State:       StateStopped.String(),
		SourceOpen:  a.src != nil && a.src.IsOpen(),
		Sensitivity: a.sensitivity,
		FPS:         a.fps.current,
		LastFrame:   a.lastFrameAt,
		LastAlert:   a.evaluator.LastAlert(),
	}
	if a.active {
		st.State = StateRunning.String()
	}
	if a.line != nil {
		l := *a.line
		st.Tripwire = &l
	}
	return st
}

func (a *Agent) tryReopen(ctx context.Context, now time.Time) bool {
	if !a.reopen.due(now) {
		return false
	}
	if err := a.src.Open(ctx); err != nil {
		delay := a.reopen.failed(now)
		a.metrics.ReadFailed(a.id, "unavailable")
		a.logger.Warn("reopen failed", "attempt", a.reopen.attempts, "retry_in", delay, "error", err)
		return false
	}
	a.logger.Info("source reopened", "attempts", a.reopen.attempts)
	a.reopen.reset()
	return true
}

// read returns the next frame. A rewindable source that reports io.EOF is
// rewound and read again so file playback loops without a gap.
func (a *Agent) read() (image.Image, error) {
	raw, err := a.src.Read()
	if !errors.Is(err, io.EOF) {
		return raw, err
	}
	r, ok := a.src.(Rewinder)
	if !ok {
		return nil, err
	}
	if rerr := r.Rewind(); rerr != nil {
		return nil, fmt.Errorf("%w: rewind: %v", ErrFrameRead, rerr)
	}
	return a.src.Read()
}

func (a *Agent) handleReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		a.metrics.ReadFailed(a.id, "eof")
	case errors.Is(err, ErrNoFrame):
	default:
		a.metrics.ReadFailed(a.id, "read")
		a.logger.Debug("frame read failed", "error", err)
	}
}

// normalize converts raw to RGBA at the processing resolution.
func (a *Agent) normalize(raw image.Image) *image.RGBA {
	b := raw.Bounds()
	if b.Dx() == a.width && b.Dy() == a.height {
		return overlay.ToRGBA(raw)
	}
	g := gift.New(gift.Resize(a.width, a.height, gift.LinearResampling))
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, raw)
	return dst
}

// watchBlack warns once when a source keeps delivering black frames, which
// usually means a virtual or wireless camera is connected but not streaming.
func (a *Agent) watchBlack(frame *image.RGBA) {
	if !isBlack(frame) {
		a.blackFrames, a.blackWarned = 0, false
		return
	}
	a.blackFrames++
	if !a.blackWarned && a.blackFrames > blackFrameLimit {
		a.logger.Warn("camera is sending black frames; check the device or streaming app is connected")
		a.blackWarned = true
	}
}

func isBlack(img *image.RGBA) bool {
	for i := 0; i < len(img.Pix); i += 4 {
		p := img.Pix[i : i+3 : i+3]
		if p[0] >= blackLevel || p[1] >= blackLevel || p[2] >= blackLevel {
			return false
		}
	}
	return true
}

type discardFrames struct{}

func (discardFrames) EmitFrame(string, image.Image) {}
