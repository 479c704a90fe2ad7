package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawBoxClipsToBounds(t *testing.T) {
	img := Blank(20, 20)
	DrawBox(img, image.Rect(-5, -5, 30, 30), Green, 2)
	DrawBox(img, image.Rect(2, 2, 10, 10), Green, 1)

	assert.Equal(t, Green, img.RGBAAt(2, 2))
	assert.Equal(t, Green, img.RGBAAt(9, 6))
	assert.Equal(t, Black, img.RGBAAt(6, 6))
}

func TestDrawBoxStaysInsideRectangle(t *testing.T) {
	img := Blank(20, 20)
	r := image.Rect(4, 5, 12, 15)
	DrawBox(img, r, Red, 1)

	assert.Equal(t, Red, img.RGBAAt(4, 5))
	assert.Equal(t, Red, img.RGBAAt(11, 14))
	assert.Equal(t, Red, img.RGBAAt(11, 9))
	assert.Equal(t, Red, img.RGBAAt(7, 14))
	assert.Equal(t, Black, img.RGBAAt(12, 9), "Max.X is outside the box")
	assert.Equal(t, Black, img.RGBAAt(7, 15), "Max.Y is outside the box")
	assert.Equal(t, Black, img.RGBAAt(8, 10))

	DrawBox(img, image.Rect(15, 15, 15, 18), Red, 1)
	assert.Equal(t, Black, img.RGBAAt(15, 16), "empty rectangles draw nothing")
}

func TestDrawLineEndpoints(t *testing.T) {
	img := Blank(50, 50)
	DrawLine(img, 5, 40, 45, 3, Yellow, 1)

	assert.Equal(t, Yellow, img.RGBAAt(5, 40))
	assert.Equal(t, Yellow, img.RGBAAt(45, 3))
}

func TestToRGBARebasesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 30))
	src.SetRGBA(10, 10, Red)

	out := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 10, 20), out.Bounds())
	assert.Equal(t, Red, out.RGBAAt(0, 0))
}
