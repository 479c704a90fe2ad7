// Package motion finds moving regions by differencing consecutive frames.
package motion

import (
	"image"
	"sync"

	"github.com/disintegration/gift"

	"tripwatch/internal/overlay"
)

const (
	// DefaultBlurSigma matches a 21x21 Gaussian kernel.
	DefaultBlurSigma = 3.5
	// DefaultDiffThreshold is the 8-bit cutoff applied to the frame delta.
	DefaultDiffThreshold = 25
	// DefaultDilateIterations merges blobs that are a few pixels apart.
	DefaultDilateIterations = 2
	// DefaultMinArea is the default minimum region area in pixels.
	DefaultMinArea = 1000
)

// Region is one moving area found in a frame.
type Region struct {
	Box  image.Rectangle
	Area float64
}

// Config holds detector tuning.
type Config struct {
	BlurSigma        float32
	DiffThreshold    uint8
	DilateIterations int
	MinArea          int
}

// Detector keeps one frame of history and compares every new frame against
// it. It does no background modelling: history is always the last frame.
type Detector struct {
	mu        sync.Mutex
	cfg       Config
	prev      *image.Gray
	preFilter *gift.GIFT
}

// NewDetector creates a detector, filling zero config fields with defaults.
func NewDetector(cfg Config) *Detector {
	if cfg.BlurSigma == 0 {
		cfg.BlurSigma = DefaultBlurSigma
	}
	if cfg.DiffThreshold == 0 {
		cfg.DiffThreshold = DefaultDiffThreshold
	}
	if cfg.DilateIterations == 0 {
		cfg.DilateIterations = DefaultDilateIterations
	}
	if cfg.MinArea <= 0 {
		cfg.MinArea = DefaultMinArea
	}

	return &Detector{
		cfg:       cfg,
		preFilter: gift.New(gift.Grayscale(), gift.GaussianBlur(cfg.BlurSigma)),
	}
}

// SetMinArea changes the area below which regions are discarded. Values
// that are not positive are ignored.
func (d *Detector) SetMinArea(area int) {
	if area <= 0 {
		return
	}
	d.mu.Lock()
	d.cfg.MinArea = area
	d.mu.Unlock()
}

// MinArea returns the current minimum region area.
func (d *Detector) MinArea() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.MinArea
}

// Reset drops the stored frame so the next call warms up again.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// Warm reports whether a previous frame is stored.
func (d *Detector) Warm() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prev != nil
}

// Process compares frame with the stored one and returns an annotated copy
// of frame plus the regions that moved. The first frame after creation or
// Reset is only stored: it comes back unannotated with no regions.
func (d *Detector) Process(frame image.Image) (*image.RGBA, []Region) {
	d.mu.Lock()
	defer d.mu.Unlock()

	annotated := overlay.ToRGBA(frame)

	gray := image.NewGray(d.preFilter.Bounds(frame.Bounds()))
	d.preFilter.Draw(gray, frame)

	if d.prev == nil || d.prev.Rect != gray.Rect {
		d.prev = gray
		return annotated, nil
	}

	mask := Difference(d.prev, gray, d.cfg.DiffThreshold)
	for i := 0; i < d.cfg.DilateIterations; i++ {
		mask = Dilate(mask)
	}
	regions := FindRegions(mask, d.cfg.MinArea)

	d.prev = gray

	for _, r := range regions {
		overlay.DrawBox(annotated, r.Box, overlay.Green, 2)
	}
	return annotated, regions
}

// Difference returns a binary mask that is 255 wherever the absolute
// difference of a and b exceeds threshold and 0 elsewhere. Both images must
// share the same rectangle.
func Difference(a, b *image.Gray, threshold uint8) *image.Gray {
	mask := image.NewGray(a.Rect)
	for i := range a.Pix {
		pa, pb := a.Pix[i], b.Pix[i]
		var delta uint8
		if pa > pb {
			delta = pa - pb
		} else {
			delta = pb - pa
		}
		if delta > threshold {
			mask.Pix[i] = 255
		}
	}
	return mask
}

// Dilate grows every foreground pixel of a binary mask into its 3x3
// neighbourhood.
func Dilate(mask *image.Gray) *image.Gray {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	out := image.NewGray(mask.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					out.Pix[ny*out.Stride+nx] = 255
				}
			}
		}
	}
	return out
}

// FindRegions labels the 8-connected foreground components of mask and
// returns those whose enclosed area is at least minArea, in scan order.
// The enclosed area is everything inside the component's outer boundary,
// so the hollow outline a moving flat object leaves in a frame delta
// counts as the whole object.
func FindRegions(mask *image.Gray, minArea int) []Region {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	labels := make([]int32, w*h)
	var regions []Region
	var stack []int
	var label int32

	for start := 0; start < w*h; start++ {
		sx, sy := start%w, start/w
		if labels[start] != 0 || mask.Pix[sy*mask.Stride+sx] == 0 {
			continue
		}

		label++
		minX, minY, maxX, maxY := sx, sy, sx, sy
		labels[start] = label
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					n := ny*w + nx
					if labels[n] != 0 || mask.Pix[ny*mask.Stride+nx] == 0 {
						continue
					}
					labels[n] = label
					stack = append(stack, n)
				}
			}
		}

		box := image.Rect(minX, minY, maxX+1, maxY+1)
		area := enclosedArea(labels, w, label, box)
		if area < minArea {
			continue
		}
		regions = append(regions, Region{
			Box:  box.Add(mask.Rect.Min),
			Area: float64(area),
		})
	}
	return regions
}

// enclosedArea counts the pixels of box not reachable from outside the
// component without crossing it. Background is 4-connected, the dual of
// the 8-connected foreground.
func enclosedArea(labels []int32, stride int, label int32, box image.Rectangle) int {
	// Work on box padded by one pixel so the outside is a single region.
	pw, ph := box.Dx()+2, box.Dy()+2
	outside := make([]bool, pw*ph)
	wall := func(px, py int) bool {
		x, y := box.Min.X+px-1, box.Min.Y+py-1
		if x < box.Min.X || x >= box.Max.X || y < box.Min.Y || y >= box.Max.Y {
			return false
		}
		return labels[y*stride+x] == label
	}

	reached := 1
	outside[0] = true
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := idx%pw, idx/pw
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= pw || ny < 0 || ny >= ph {
				continue
			}
			n := ny*pw + nx
			if outside[n] || wall(nx, ny) {
				continue
			}
			outside[n] = true
			reached++
			stack = append(stack, n)
		}
	}
	return pw*ph - reached
}
