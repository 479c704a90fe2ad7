// Package geometry holds the segment and rectangle tests used by tripwire
// evaluation. Everything here is pure and allocation free.
package geometry

import "math"

// parallelEpsilon is the denominator magnitude below which two segments are
// treated as parallel or degenerate.
const parallelEpsilon = 1e-10

// Point is a position in frame pixel coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside the closed rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// SegmentsIntersect reports whether segment p1-p2 intersects segment p3-p4.
// Parallel, collinear and zero-length segments never intersect.
func SegmentsIntersect(p1, p2, p3, p4 Point) bool {
	d := (p1.X-p2.X)*(p3.Y-p4.Y) - (p1.Y-p2.Y)*(p3.X-p4.X)
	if math.Abs(d) < parallelEpsilon {
		return false
	}

	t := ((p1.X-p3.X)*(p3.Y-p4.Y) - (p1.Y-p3.Y)*(p3.X-p4.X)) / d
	u := -((p1.X-p2.X)*(p1.Y-p3.Y) - (p1.Y-p2.Y)*(p1.X-p3.X)) / d

	return t >= 0 && t <= 1 && u >= 0 && u <= 1
}

// LineCrossesRect reports whether the segment p1-p2 touches rect: either an
// endpoint lies inside it or the segment cuts one of its four edges.
//
// This is an overlap test, not a trajectory test. A box that merely sits on
// the line counts as a crossing.
func LineCrossesRect(p1, p2 Point, rect Rect) bool {
	if rect.Contains(p1) || rect.Contains(p2) {
		return true
	}

	tl := Point{rect.X, rect.Y}
	tr := Point{rect.X + rect.W, rect.Y}
	br := Point{rect.X + rect.W, rect.Y + rect.H}
	bl := Point{rect.X, rect.Y + rect.H}

	return SegmentsIntersect(p1, p2, tl, tr) ||
		SegmentsIntersect(p1, p2, tr, br) ||
		SegmentsIntersect(p1, p2, br, bl) ||
		SegmentsIntersect(p1, p2, bl, tl)
}
