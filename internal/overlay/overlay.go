// Package overlay draws annotations onto RGBA frames: boxes, labels, lines
// and endpoint markers.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Green  = color.RGBA{0, 255, 0, 255}
	Red    = color.RGBA{255, 0, 0, 255}
	Yellow = color.RGBA{255, 255, 0, 255}
	White  = color.RGBA{255, 255, 255, 255}
	Black  = color.RGBA{0, 0, 0, 255}
)

// ToRGBA returns a copy of img as an *image.RGBA anchored at (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// Blank returns a solid black frame of the given size.
func Blank(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(Black), image.Point{}, draw.Src)
	return img
}

// DrawBox draws the outline of r with the given thickness. Like every
// image.Rectangle, r excludes its Max edge.
func DrawBox(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	if r.Empty() {
		return
	}
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	for t := 0; t < thickness; t++ {
		for i := x0; i <= x1; i++ {
			setClipped(img, i, y0+t, c)
			setClipped(img, i, y1-t, c)
		}
		for j := y0; j <= y1; j++ {
			setClipped(img, x0+t, j, c)
			setClipped(img, x1-t, j, c)
		}
	}
}

// DrawLine draws a thick segment between two pixel positions using
// Bresenham's algorithm, stamping a square brush at every step.
func DrawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA, thickness int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	half := thickness / 2
	err := dx + dy
	for {
		for by := -half; by <= half; by++ {
			for bx := -half; bx <= half; bx++ {
				setClipped(img, x0+bx, y0+by, c)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawDisc fills a circle of radius r centred on (cx, cy).
func DrawDisc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				setClipped(img, cx+x, cy+y, c)
			}
		}
	}
}

// DrawLabel writes text with its baseline box starting at (x, y) on a dark
// backing strip so it stays legible over bright scenes.
func DrawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bg := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			setClipped(img, x+dx, y+dy, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Rect) {
		img.SetRGBA(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
