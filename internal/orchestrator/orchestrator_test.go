package orchestrator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwatch/internal/camera"
	"tripwatch/internal/config"
	"tripwatch/internal/tripwire"
)

const (
	width  = 160
	height = 120
)

type scriptedSource struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	open   bool
}

func (s *scriptedSource) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *scriptedSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *scriptedSource) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.frames) {
		return nil, camera.ErrNoFrame
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *scriptedSource) Kind() camera.Kind { return camera.KindDevice }

type recordingSink struct {
	mu     sync.Mutex
	alerts []camera.Alert
	err    error
}

func (r *recordingSink) EmitAlert(ctx context.Context, alert camera.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

type orderedFrames struct {
	mu  sync.Mutex
	ids []string
}

func (o *orderedFrames) EmitFrame(id string, _ image.Image) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
}

// motionClip is a black frame followed by frames alternating a bright block
// across the middle of the picture with black.
func motionClip(n int) []image.Image {
	black := image.NewGray(image.Rect(0, 0, width, height))
	block := image.NewGray(image.Rect(0, 0, width, height))
	for y := 40; y < 80; y++ {
		for x := 60; x < 100; x++ {
			block.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	frames := []image.Image{black}
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			frames = append(frames, block)
		} else {
			frames = append(frames, black)
		}
	}
	return frames
}

type harness struct {
	orch    *Orchestrator
	sources map[string]*scriptedSource
	sink    *recordingSink
	frames  *orderedFrames
	now     time.Time
}

func newHarness(t *testing.T, ids []string, opts Options) *harness {
	t.Helper()
	h := &harness{
		sources: make(map[string]*scriptedSource),
		sink:    &recordingSink{},
		frames:  &orderedFrames{},
		now:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}

	line := &tripwire.Line{X1: 0, Y1: 0.5, X2: 1, Y2: 0.5}
	var cams []config.Camera
	for _, id := range ids {
		h.sources[id] = &scriptedSource{frames: motionClip(6)}
		cams = append(cams, config.Camera{ID: id, Name: "cam " + id, Source: id, Sensitivity: 500, Tripwire: line, Autostart: true})
	}

	if opts.Alerts == nil {
		opts.Alerts = h.sink
	}
	opts.Agent = camera.Options{
		Width:   width,
		Height:  height,
		Sources: func(descriptor string) camera.Source { return h.sources[descriptor] },
		Frames:  h.frames,
		Clock:   func() time.Time { return h.now },
	}

	orch, err := New(cams, opts)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]config.Camera{{ID: "a"}, {ID: "a"}}, Options{})
	require.ErrorIs(t, err, config.ErrConfigInvalid)
}

func TestToggleUnknownCamera(t *testing.T) {
	h := newHarness(t, []string{"a", "b"}, Options{})
	h.orch.StartAll(context.Background())

	_, err := h.orch.Toggle(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownCamera)

	for _, st := range h.orch.Cameras() {
		assert.Equal(t, camera.StateRunning.String(), st.State, st.ID)
	}
}

func TestControlCallsRejectUnknownCamera(t *testing.T) {
	h := newHarness(t, []string{"a"}, Options{})

	assert.ErrorIs(t, h.orch.SetSensitivity("x", 10), ErrUnknownCamera)
	assert.ErrorIs(t, h.orch.SetTripwireLine("x", nil), ErrUnknownCamera)
	_, err := h.orch.CaptureSnapshot(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnknownCamera)
	_, err = h.orch.Camera("x")
	assert.ErrorIs(t, err, ErrUnknownCamera)
}

func TestToggleFlipsState(t *testing.T) {
	h := newHarness(t, []string{"a"}, Options{})

	state, err := h.orch.Toggle(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, camera.StateRunning, state)

	state, err = h.orch.Toggle(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, camera.StateStopped, state)
}

func TestTickVisitsCamerasInIDOrder(t *testing.T) {
	h := newHarness(t, []string{"c", "a", "b"}, Options{})
	h.orch.StartAll(context.Background())

	h.orch.Tick(context.Background())
	assert.Equal(t, []string{"a", "b", "c"}, h.frames.ids)

	raised := h.orch.Tick(context.Background())
	require.Len(t, raised, 3)

	var sinkOrder []string
	for _, a := range h.sink.alerts {
		sinkOrder = append(sinkOrder, a.CameraID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, sinkOrder)

	var logOrder []string
	for _, a := range h.orch.Alerts(0) {
		logOrder = append(logOrder, a.CameraID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, logOrder, "most recent first")
}

func TestSinkErrorDoesNotAbortTick(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	h := newHarness(t, []string{"a", "b"}, Options{Alerts: sink})
	h.orch.StartAll(context.Background())

	h.orch.Tick(context.Background())
	raised := h.orch.Tick(context.Background())

	assert.Len(t, raised, 2)
	assert.Len(t, sink.alerts, 2)
	assert.Len(t, h.orch.Alerts(0), 2)
}

func TestAlertLogIsBounded(t *testing.T) {
	h := newHarness(t, []string{"a"}, Options{AlertLogSize: 2})
	h.orch.StartAll(context.Background())

	h.orch.Tick(context.Background())
	for range 3 {
		h.now = h.now.Add(3 * time.Second)
		h.orch.Tick(context.Background())
	}

	assert.Len(t, h.sink.alerts, 3)
	log := h.orch.Alerts(0)
	require.Len(t, log, 2)
	assert.Equal(t, h.sink.alerts[2].ID, log[0].ID)
	assert.Equal(t, h.sink.alerts[1].ID, log[1].ID)
	assert.Len(t, h.orch.Alerts(1), 1)
}

func TestStoppedCameraDoesNotTick(t *testing.T) {
	h := newHarness(t, []string{"a", "b"}, Options{})
	h.orch.StartAll(context.Background())

	_, err := h.orch.Toggle(context.Background(), "a")
	require.NoError(t, err)
	h.frames.ids = nil

	h.orch.Tick(context.Background())
	assert.Equal(t, []string{"b"}, h.frames.ids)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, []string{"a"}, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
