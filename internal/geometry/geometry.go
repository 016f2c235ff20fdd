// Package geometry maps between normalized board/image space and canvas
// pixel space.
//
// Normalized coordinates are fractions of the source image: (0,0) is the top
// left corner of the frame and (1,1) the bottom right. The canvas shows the
// image scaled uniformly and centered (letterboxed), so every conversion goes
// through the letterbox rectangle rather than the raw canvas dimensions.
package geometry

import "math"

// CanvasMargin is subtracted from the wrapper width when sizing the canvas.
const CanvasMargin = 10

// Point is a 2D point. Its space (normalized or pixel) is given by context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Size is a width/height pair in pixels.
type Size struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool { return s.W <= 0 || s.H <= 0 }

// Layout describes how a source image of natural size Image is shown on a
// canvas of size Canvas.
type Layout struct {
	Canvas Size `json:"canvas"`
	Image  Size `json:"image"`
}

// FitCanvas sizes a canvas for the given wrapper width: the width loses a
// fixed margin and the height follows the source aspect ratio. Returns an
// empty size while the image dimensions are unknown.
func FitCanvas(wrapperWidth float64, image Size) Size {
	if image.Empty() {
		return Size{}
	}
	w := wrapperWidth - CanvasMargin
	if w <= 0 {
		return Size{}
	}
	return Size{W: w, H: w * image.H / image.W}
}

// Ready reports whether both canvas and image dimensions are known.
func (l Layout) Ready() bool {
	return !l.Canvas.Empty() && !l.Image.Empty()
}

// Scale returns the uniform image-to-canvas scale factor.
func (l Layout) Scale() float64 {
	if !l.Ready() {
		return 0
	}
	return math.Min(l.Canvas.W/l.Image.W, l.Canvas.H/l.Image.H)
}

// ImageRect returns the top-left offset and drawn size of the letterboxed
// image inside the canvas.
func (l Layout) ImageRect() (Point, Size) {
	scale := l.Scale()
	if scale == 0 {
		return Point{}, Size{}
	}
	drawn := Size{W: l.Image.W * scale, H: l.Image.H * scale}
	offset := Point{
		X: (l.Canvas.W - drawn.W) / 2,
		Y: (l.Canvas.H - drawn.H) / 2,
	}
	return offset, drawn
}

// ToCanvas converts a normalized point to canvas pixels. ok is false while
// the layout is not ready.
func (l Layout) ToCanvas(p Point) (Point, bool) {
	if !l.Ready() {
		return Point{}, false
	}
	offset, drawn := l.ImageRect()
	return Point{
		X: offset.X + p.X*drawn.W,
		Y: offset.Y + p.Y*drawn.H,
	}, true
}

// ToNormalized converts canvas pixels to a normalized point. ok is false
// while the layout is not ready.
func (l Layout) ToNormalized(p Point) (Point, bool) {
	if !l.Ready() {
		return Point{}, false
	}
	offset, drawn := l.ImageRect()
	return Point{
		X: (p.X - offset.X) / drawn.W,
		Y: (p.Y - offset.Y) / drawn.H,
	}, true
}

// DeltaToNormalized converts a pixel delta to a normalized delta relative to
// the canvas (not the letterboxed image), matching how drag anchors are taken.
func (l Layout) DeltaToNormalized(dx, dy float64) (Point, bool) {
	if l.Canvas.Empty() {
		return Point{}, false
	}
	return Point{X: dx / l.Canvas.W, Y: dy / l.Canvas.H}, true
}

// Contains reports whether the pixel p lies within the canvas bounds.
func (l Layout) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= l.Canvas.W && p.Y <= l.Canvas.H
}
