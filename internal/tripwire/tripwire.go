// Package tripwire decides when motion crosses a configured line and
// enforces a per-camera alert cooldown.
package tripwire

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"tripwatch/internal/geometry"
	"tripwatch/internal/motion"
	"tripwatch/internal/overlay"
)

// DefaultCooldown is the minimum gap between two alerts from one camera.
const DefaultCooldown = 2 * time.Second

// ErrInvalidLine is returned for lines with coordinates outside [0,1].
var ErrInvalidLine = errors.New("invalid tripwire line")

// Line is a tripwire in normalized frame coordinates.
type Line struct {
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
	X2 float64 `json:"x2" yaml:"x2"`
	Y2 float64 `json:"y2" yaml:"y2"`
}

// LineFromSlice builds a line from four coordinates. An empty slice means
// no line.
func LineFromSlice(v []float64) (*Line, error) {
	if len(v) == 0 {
		return nil, nil
	}
	if len(v) != 4 {
		return nil, fmt.Errorf("%w: want 4 coordinates, got %d", ErrInvalidLine, len(v))
	}
	l := &Line{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks every coordinate is a number in [0,1].
func (l Line) Validate() error {
	for _, v := range []float64{l.X1, l.Y1, l.X2, l.Y2} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: coordinate %v outside [0,1]", ErrInvalidLine, v)
		}
	}
	return nil
}

// Points scales the line to a frame of the given size.
func (l Line) Points(size image.Point) (geometry.Point, geometry.Point) {
	w, h := float64(size.X), float64(size.Y)
	return geometry.Point{X: l.X1 * w, Y: l.Y1 * h}, geometry.Point{X: l.X2 * w, Y: l.Y2 * h}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Alert  bool
	Region motion.Region
}

// Evaluator tracks the last alert time of one camera.
type Evaluator struct {
	mu        sync.Mutex
	cooldown  time.Duration
	lastAlert time.Time
}

// NewEvaluator creates an evaluator. A non-positive cooldown selects
// DefaultCooldown.
func NewEvaluator(cooldown time.Duration) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Evaluator{cooldown: cooldown}
}

// Evaluate checks regions against line at time now. It alerts at most once
// per call: the first region touching the line wins. The cooldown clock only
// moves when an alert is returned. A nil line never alerts.
func (e *Evaluator) Evaluate(line *Line, regions []motion.Region, size image.Point, now time.Time) Decision {
	if line == nil || len(regions) == 0 {
		return Decision{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastAlert.IsZero() && now.Sub(e.lastAlert) <= e.cooldown {
		return Decision{}
	}

	p1, p2 := line.Points(size)
	for _, r := range regions {
		rect := geometry.Rect{
			X: float64(r.Box.Min.X),
			Y: float64(r.Box.Min.Y),
			W: float64(r.Box.Dx()),
			H: float64(r.Box.Dy()),
		}
		if geometry.LineCrossesRect(p1, p2, rect) {
			e.lastAlert = now
			return Decision{Alert: true, Region: r}
		}
	}
	return Decision{}
}

// LastAlert returns the time of the last alert, zero if none.
func (e *Evaluator) LastAlert() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAlert
}

// Draw renders line and its endpoints onto img. Flash switches the line to
// the alert colour.
func Draw(img *image.RGBA, line *Line, flash bool) {
	if line == nil {
		return
	}
	p1, p2 := line.Points(img.Rect.Size())
	c := overlay.Yellow
	if flash {
		c = overlay.Red
	}
	x1, y1 := int(math.Round(p1.X)), int(math.Round(p1.Y))
	x2, y2 := int(math.Round(p2.X)), int(math.Round(p2.Y))
	overlay.DrawLine(img, x1, y1, x2, y2, c, 3)
	overlay.DrawDisc(img, x1, y1, 5, c)
	overlay.DrawDisc(img, x2, y2, 5, c)
}
