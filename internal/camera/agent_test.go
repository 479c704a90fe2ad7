package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwatch/internal/config"
	"tripwatch/internal/tripwire"
)

const (
	testWidth  = 160
	testHeight = 120
)

type fakeSource struct {
	mu       sync.Mutex
	frames   []image.Image
	next     int
	open     bool
	openErrs int
	opens    int
	reads    int
	closes   int
	kind     Kind

	// the first failReads reads return readErr
	failReads int
	readErr   error
}

func (f *fakeSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErrs > 0 {
		f.openErrs--
		return ErrSourceUnavailable
	}
	f.open = true
	return nil
}

func (f *fakeSource) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSource) Read() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failReads > 0 {
		f.failReads--
		return nil, f.readErr
	}
	if f.next >= len(f.frames) {
		return nil, ErrNoFrame
	}
	img := f.frames[f.next]
	f.next++
	return img, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
	return nil
}

func (f *fakeSource) Kind() Kind { return f.kind }

type recordingFrames struct {
	mu     sync.Mutex
	frames []image.Image
}

func (r *recordingFrames) EmitFrame(cameraID string, frame image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *recordingFrames) all() []image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]image.Image(nil), r.frames...)
}

type recordingSnapshots struct {
	name string
	data []byte
}

func (r *recordingSnapshots) SaveSnapshot(ctx context.Context, cameraName string, ts time.Time, data []byte) (string, error) {
	r.name = cameraName
	r.data = data
	return "snap-1", nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time         { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func solid(v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, testWidth, testHeight))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func withBlock(v uint8, block image.Rectangle) *image.Gray {
	img := solid(0)
	for y := block.Min.Y; y < block.Max.Y; y++ {
		for x := block.Min.X; x < block.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func newTestAgent(t *testing.T, cam config.Camera, src Source) (*Agent, *recordingFrames, *fakeClock) {
	t.Helper()
	frames := &recordingFrames{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	a := NewAgent(cam, Options{
		Width:   testWidth,
		Height:  testHeight,
		Sources: func(string) Source { return src },
		Frames:  frames,
		Clock:   clock.Now,
	})
	return a, frames, clock
}

func TestAgentLoopsFileSource(t *testing.T) {
	dir := t.TempDir()
	for i, v := range []uint8{50, 100, 150} {
		f, err := os.Create(filepath.Join(dir, "frame"+string(rune('1'+i))+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, solid(v)))
		require.NoError(t, f.Close())
	}

	a, frames, _ := newTestAgent(t, config.Camera{ID: "clip", Name: "Clip", Source: dir}, NewSequenceSource(dir))
	require.NoError(t, a.Start(context.Background()))

	for range 4 {
		a.Process(context.Background())
	}

	got := frames.all()
	require.Len(t, got, 4)
	var levels []uint8
	for _, img := range got {
		r, _, _, _ := img.At(140, 100).RGBA()
		levels = append(levels, uint8(r>>8))
	}
	assert.Equal(t, []uint8{50, 100, 150, 50}, levels)
}

func TestAgentStopThenProcessIsNoop(t *testing.T) {
	src := &fakeSource{frames: []image.Image{solid(80), solid(90)}}
	a, frames, _ := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, src)

	require.NoError(t, a.Start(context.Background()))
	a.Stop()

	assert.NotPanics(t, func() {
		assert.Nil(t, a.Process(context.Background()))
	})
	assert.Equal(t, StateStopped, a.State())
	assert.Equal(t, 1, src.closes)
	assert.Zero(t, src.reads)

	got := frames.all()
	require.Len(t, got, 1)
	r, g, b, _ := got[0].At(testWidth/2, testHeight/2).RGBA()
	assert.Zero(t, r+g+b, "placeholder frame is black")
}

func TestAgentStartStopAreIdempotent(t *testing.T) {
	src := &fakeSource{}
	a, frames, _ := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, src)

	a.Stop()
	assert.Empty(t, frames.all())

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, 1, src.opens)
	assert.Equal(t, StateRunning, a.State())
}

func TestAgentStartReportsUnavailableAndRetries(t *testing.T) {
	src := &fakeSource{openErrs: 2, frames: []image.Image{solid(60)}}
	a, frames, clock := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, src)

	err := a.Start(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, StateRunning, a.State())

	// not yet due
	a.Process(context.Background())
	assert.Equal(t, 1, src.opens)

	clock.Advance(time.Second)
	a.Process(context.Background())
	assert.Equal(t, 2, src.opens, "first retry after 1s")

	clock.Advance(time.Second)
	a.Process(context.Background())
	assert.Equal(t, 2, src.opens, "second retry waits 2s")

	clock.Advance(time.Second)
	a.Process(context.Background())
	assert.Equal(t, 3, src.opens)
	assert.Equal(t, 1, src.reads)
	assert.Len(t, frames.all(), 1)
}

func TestAgentRaisesAlertWithCooldown(t *testing.T) {
	block := image.Rect(60, 40, 100, 80)
	src := &fakeSource{frames: []image.Image{
		solid(0), withBlock(255, block), solid(0), withBlock(255, block),
	}}
	line := &tripwire.Line{X1: 0, Y1: 0.5, X2: 1, Y2: 0.5}
	a, _, clock := newTestAgent(t, config.Camera{ID: "door", Name: "Door", Source: "0", Tripwire: line}, src)
	require.NoError(t, a.Start(context.Background()))

	ctx := context.Background()
	assert.Nil(t, a.Process(ctx), "first frame only warms up")

	alert := a.Process(ctx)
	require.NotNil(t, alert)
	assert.Equal(t, "door", alert.CameraID)
	assert.Equal(t, "Door", alert.CameraName)
	assert.Equal(t, clock.Now(), alert.Timestamp)
	assert.NotEmpty(t, alert.ID)
	assert.True(t, alert.Box.Overlaps(block))

	clock.Advance(time.Second)
	assert.Nil(t, a.Process(ctx), "inside cooldown")

	clock.Advance(1500 * time.Millisecond)
	assert.NotNil(t, a.Process(ctx))
	assert.Equal(t, clock.Now(), a.Status().LastAlert)
}

func TestAgentWithoutTripwireNeverAlerts(t *testing.T) {
	src := &fakeSource{frames: []image.Image{solid(0), withBlock(255, image.Rect(60, 40, 100, 80))}}
	a, _, _ := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, src)
	require.NoError(t, a.Start(context.Background()))

	assert.Nil(t, a.Process(context.Background()))
	assert.Nil(t, a.Process(context.Background()))
}

func TestAgentSetters(t *testing.T) {
	a, _, _ := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, &fakeSource{})

	assert.Equal(t, config.DefaultSensitivity, a.Status().Sensitivity)
	require.ErrorIs(t, a.SetSensitivity(0), ErrInvalidSensitivity)
	require.NoError(t, a.SetSensitivity(250))
	assert.Equal(t, 250, a.Status().Sensitivity)

	require.ErrorIs(t, a.SetTripwireLine(&tripwire.Line{X1: -0.1, Y1: 0, X2: 1, Y2: 1}), tripwire.ErrInvalidLine)
	assert.Nil(t, a.Status().Tripwire)

	line := &tripwire.Line{X1: 0.1, Y1: 0.2, X2: 0.3, Y2: 0.4}
	require.NoError(t, a.SetTripwireLine(line))
	line.X1 = 0.9
	assert.Equal(t, 0.1, a.Status().Tripwire.X1, "agent keeps its own copy")

	require.NoError(t, a.SetTripwireLine(nil))
	assert.Nil(t, a.Status().Tripwire)
}

func TestAgentSnapshotUsesCachedFrame(t *testing.T) {
	src := &fakeSource{frames: []image.Image{solid(120)}}
	snaps := &recordingSnapshots{}
	a := NewAgent(config.Camera{ID: "a", Name: "Porch", Source: "0"}, Options{
		Width:     testWidth,
		Height:    testHeight,
		Sources:   func(string) Source { return src },
		Snapshots: snaps,
	})

	id, err := a.TakeSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id, "nothing cached yet")

	require.NoError(t, a.Start(context.Background()))
	a.Process(context.Background())
	readsBefore := src.reads

	id, err = a.TakeSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snap-1", id)
	assert.Equal(t, "Porch", snaps.name)
	assert.Equal(t, []byte{0xFF, 0xD8}, snaps.data[:2])
	assert.Equal(t, readsBefore, src.reads, "snapshot does not read the source")
}

func TestAgentWarnsOnceAboutBlackFrames(t *testing.T) {
	var frames []image.Image
	for range blackFrameLimit + 2 {
		frames = append(frames, solid(3))
	}
	frames = append(frames, solid(200))
	src := &fakeSource{frames: frames}
	a, _, _ := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, src)
	require.NoError(t, a.Start(context.Background()))

	for range blackFrameLimit {
		a.Process(context.Background())
	}
	assert.False(t, a.blackWarned)

	a.Process(context.Background())
	assert.True(t, a.blackWarned)

	a.Process(context.Background())
	a.Process(context.Background())
	assert.False(t, a.blackWarned, "re-armed by a bright frame")
	assert.Zero(t, a.blackFrames)
}

func TestAgentResizesToProcessingSize(t *testing.T) {
	big := image.NewGray(image.Rect(0, 0, 320, 240))
	src := &fakeSource{frames: []image.Image{big}}
	a, frames, _ := newTestAgent(t, config.Camera{ID: "a", Name: "A", Source: "0"}, src)
	require.NoError(t, a.Start(context.Background()))

	a.Process(context.Background())

	got := frames.all()
	require.Len(t, got, 1)
	assert.Equal(t, image.Rect(0, 0, testWidth, testHeight), got[0].Bounds())
}

func TestAgentSwallowsLiveReadFailures(t *testing.T) {
	line := &tripwire.Line{X1: 0, Y1: 0.5, X2: 1, Y2: 0.5}
	tests := []struct {
		name string
		kind Kind
		err  error
	}{
		{"device read error", KindDevice, fmt.Errorf("%w: v4l2 timeout", ErrFrameRead)},
		{"network end of stream", KindNetwork, io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				kind:      tt.kind,
				failReads: 3,
				readErr:   tt.err,
				frames:    []image.Image{solid(80)},
			}
			cam := config.Camera{ID: "live", Name: "Live", Source: "rtsp://cam", Tripwire: line}
			a, frames, _ := newTestAgent(t, cam, src)
			require.NoError(t, a.Start(context.Background()))

			for range 3 {
				assert.Nil(t, a.Process(context.Background()))
			}
			assert.Empty(t, frames.all())
			assert.Equal(t, StateRunning, a.State())
			assert.True(t, src.IsOpen())
			assert.Zero(t, src.closes)

			assert.Nil(t, a.Process(context.Background()))
			assert.Len(t, frames.all(), 1, "a good frame after failures is processed")
			assert.Equal(t, StateRunning, a.State())
		})
	}
}
