package tripwire

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwatch/internal/motion"
	"tripwatch/internal/overlay"
)

var frameSize = image.Pt(640, 480)

// vertical line through x=320
var centerLine = &Line{X1: 0.5, Y1: 0, X2: 0.5, Y2: 1}

func crossing() []motion.Region {
	return []motion.Region{{Box: image.Rect(300, 200, 340, 260), Area: 2400}}
}

func TestEvaluateCooldown(t *testing.T) {
	e := NewEvaluator(2 * time.Second)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	first := e.Evaluate(centerLine, crossing(), frameSize, t0)
	second := e.Evaluate(centerLine, crossing(), frameSize, t0.Add(time.Second))
	third := e.Evaluate(centerLine, crossing(), frameSize, t0.Add(2100*time.Millisecond))

	assert.True(t, first.Alert)
	assert.False(t, second.Alert)
	assert.True(t, third.Alert)
	assert.Equal(t, t0.Add(2100*time.Millisecond), e.LastAlert())
}

func TestEvaluateCooldownBoundaryIsExclusive(t *testing.T) {
	e := NewEvaluator(2 * time.Second)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, e.Evaluate(centerLine, crossing(), frameSize, t0).Alert)
	assert.False(t, e.Evaluate(centerLine, crossing(), frameSize, t0.Add(2*time.Second)).Alert)
}

func TestEvaluateNoLineIsPassthrough(t *testing.T) {
	e := NewEvaluator(0)
	d := e.Evaluate(nil, crossing(), frameSize, time.Now())

	assert.False(t, d.Alert)
	assert.True(t, e.LastAlert().IsZero())
}

func TestEvaluateNoCrossingLeavesCooldown(t *testing.T) {
	e := NewEvaluator(0)
	far := []motion.Region{{Box: image.Rect(10, 10, 50, 50), Area: 1600}}

	d := e.Evaluate(centerLine, far, frameSize, time.Now())

	assert.False(t, d.Alert)
	assert.True(t, e.LastAlert().IsZero())
}

func TestEvaluateFirstRegionWins(t *testing.T) {
	e := NewEvaluator(0)
	regions := []motion.Region{
		{Box: image.Rect(10, 10, 50, 50), Area: 1600},
		{Box: image.Rect(310, 10, 330, 90), Area: 1600},
		{Box: image.Rect(300, 300, 360, 400), Area: 6000},
	}

	d := e.Evaluate(centerLine, regions, frameSize, time.Now())

	require.True(t, d.Alert)
	assert.Equal(t, regions[1], d.Region)
}

func TestLineFromSlice(t *testing.T) {
	l, err := LineFromSlice(nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = LineFromSlice([]float64{0.1, 0.2, 0.9, 0.8})
	require.NoError(t, err)
	assert.Equal(t, &Line{0.1, 0.2, 0.9, 0.8}, l)

	_, err = LineFromSlice([]float64{0.1, 0.2})
	assert.True(t, errors.Is(err, ErrInvalidLine))

	_, err = LineFromSlice([]float64{0.1, 1.2, 0.3, 0.4})
	assert.True(t, errors.Is(err, ErrInvalidLine))
}

func TestDrawColours(t *testing.T) {
	img := overlay.Blank(640, 480)
	Draw(img, centerLine, false)
	assert.Equal(t, overlay.Yellow, img.RGBAAt(320, 240))

	Draw(img, centerLine, true)
	assert.Equal(t, overlay.Red, img.RGBAAt(320, 240))
}
