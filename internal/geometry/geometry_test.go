package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentsIntersect(t *testing.T) {
	tests := []struct {
		name           string
		p1, p2, p3, p4 Point
		want           bool
	}{
		{"cross", Point{0, 0}, Point{10, 10}, Point{0, 10}, Point{10, 0}, true},
		{"touching endpoint", Point{0, 0}, Point{5, 5}, Point{5, 5}, Point{10, 0}, true},
		{"disjoint", Point{0, 0}, Point{1, 1}, Point{5, 0}, Point{6, -1}, false},
		{"parallel", Point{0, 0}, Point{10, 0}, Point{0, 1}, Point{10, 1}, false},
		{"collinear overlap", Point{0, 0}, Point{10, 0}, Point{5, 0}, Point{15, 0}, false},
		{"zero length", Point{3, 3}, Point{3, 3}, Point{0, 0}, Point{10, 10}, false},
		{"near parallel", Point{0, 0}, Point{1, 0}, Point{0, 1}, Point{1, 1 + 1e-12}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentsIntersect(tt.p1, tt.p2, tt.p3, tt.p4))
		})
	}
}

func TestLineCrossesRect(t *testing.T) {
	rect := Rect{X: 10, Y: 10, W: 20, H: 20}

	t.Run("endpoint inside", func(t *testing.T) {
		assert.True(t, LineCrossesRect(Point{15, 15}, Point{100, 100}, rect))
		assert.True(t, LineCrossesRect(Point{100, 100}, Point{30, 30}, rect))
	})

	t.Run("bisects", func(t *testing.T) {
		assert.True(t, LineCrossesRect(Point{0, 20}, Point{50, 20}, rect))
		assert.True(t, LineCrossesRect(Point{20, 0}, Point{20, 50}, rect))
	})

	t.Run("outside", func(t *testing.T) {
		assert.False(t, LineCrossesRect(Point{0, 0}, Point{50, 0}, rect))
		assert.False(t, LineCrossesRect(Point{40, 0}, Point{40, 50}, rect))
	})

	t.Run("degenerate point outside", func(t *testing.T) {
		assert.False(t, LineCrossesRect(Point{5, 5}, Point{5, 5}, rect))
	})
}
