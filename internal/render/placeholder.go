package render

import (
	"image"
	"image/color"
	"sync"

	"github.com/jfehre/countdart/panel/internal/geometry"
)

const (
	placeholderWidth  = 640
	placeholderHeight = 480
)

var (
	placeholderOnce sync.Once
	placeholderImg  *image.RGBA
)

// Placeholder returns the frame shown while a camera delivers no image.
// The image is shared and must not be modified.
func Placeholder() image.Image {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
		fill(img, color.RGBA{R: 64, G: 64, B: 64, A: 255})

		// Diagonal cross like a missing-image icon
		grey := color.RGBA{R: 110, G: 110, B: 110, A: 255}
		drawLine(img, geometry.Point{}, geometry.Point{X: placeholderWidth - 1, Y: placeholderHeight - 1}, grey)
		drawLine(img, geometry.Point{X: placeholderWidth - 1}, geometry.Point{Y: placeholderHeight - 1}, grey)

		text := "no image"
		x := float64(placeholderWidth-labelWidth(text)) / 2
		drawLabel(img, geometry.Point{X: x, Y: placeholderHeight / 2}, text, color.RGBA{R: 230, G: 230, B: 230, A: 255})
		placeholderImg = img
	})
	return placeholderImg
}
