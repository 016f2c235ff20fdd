package render

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/geometry"
)

// Scene is everything one canvas redraw needs.
type Scene struct {
	Layout geometry.Layout
	Frame  image.Image // nil until the first frame arrives
	Shapes []calibration.Shape
	Guide  [][]geometry.Point
}

// Canvas draws calibration scenes.
type Canvas struct {
	Style Style
}

// NewCanvas creates a canvas drawer with the given style.
func NewCanvas(style Style) *Canvas {
	return &Canvas{Style: style}
}

// Draw renders the scene: clear, letterboxed frame, guide rings, then the
// four targets. Without a frame only the background is drawn. ok is false
// when the canvas has no size yet.
func (c *Canvas) Draw(scene Scene) (*image.RGBA, bool) {
	w := int(math.Round(scene.Layout.Canvas.W))
	h := int(math.Round(scene.Layout.Canvas.H))
	if w <= 0 || h <= 0 {
		return nil, false
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(dst, c.Style.Background)

	if scene.Frame == nil || !scene.Layout.Ready() {
		return dst, true
	}

	offset, drawn := scene.Layout.ImageRect()
	rect := image.Rect(
		int(math.Round(offset.X)),
		int(math.Round(offset.Y)),
		int(math.Round(offset.X+drawn.W)),
		int(math.Round(offset.Y+drawn.H)),
	)
	xdraw.ApproxBiLinear.Scale(dst, rect, scene.Frame, scene.Frame.Bounds(), xdraw.Over, nil)

	for _, ring := range scene.Guide {
		drawPolyline(dst, ring, c.Style.Guide)
	}

	for _, s := range scene.Shapes {
		center, ok := scene.Layout.ToCanvas(geometry.Point{X: s.X, Y: s.Y})
		if !ok {
			continue
		}
		r := s.Radius * scene.Layout.Canvas.W
		drawCircle(dst, center, r, c.Style.Target)
		drawCross(dst, center, r, c.Style.Target)
		drawLabel(dst, geometry.Point{X: center.X + r + 2, Y: center.Y - r - 2}, s.Label, c.Style.Target)
	}

	return dst, true
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFrame decodes a JPEG or PNG frame received from the backend.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
