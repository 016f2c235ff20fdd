package render

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"strconv"
	"sync"

	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/geometry"
)

const (
	// SketchSize is the side of the dartboard sketch in pixels.
	SketchSize    = 400
	throwMarkSize = 5
	numberRadius  = 185
)

// Sketch is a top-down drawing of the board with thrown darts plotted on it.
// Plotted points are in board space: millimetres from the bull, Y up.
type Sketch struct {
	style Style

	mu     sync.Mutex
	points []geometry.Point
}

// NewSketch creates an empty sketch.
func NewSketch(style Style) *Sketch {
	return &Sketch{style: style}
}

// ToPixel maps a board point to sketch pixels: origin at the centre, Y
// inverted.
func ToPixel(p geometry.Point) geometry.Point {
	c := float64(SketchSize) / 2
	return geometry.Point{X: c + p.X, Y: c - p.Y}
}

// Plot adds a dart at board point p.
func (s *Sketch) Plot(p geometry.Point) {
	s.mu.Lock()
	s.points = append(s.points, p)
	s.mu.Unlock()
}

// Clear removes all plotted darts.
func (s *Sketch) Clear() {
	s.mu.Lock()
	s.points = nil
	s.mu.Unlock()
}

// Points returns the plotted board points.
func (s *Sketch) Points() []geometry.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geometry.Point, len(s.points))
	copy(out, s.points)
	return out
}

// Image draws the board and every plotted dart.
func (s *Sketch) Image() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, SketchSize, SketchSize))
	fill(dst, s.style.Board)

	center := ToPixel(geometry.Point{})
	for _, r := range calibration.Rings {
		drawCircle(dst, center, r, s.style.BoardLines)
	}

	// Sector boundaries run from the single bull to the outer double ring
	for i := range calibration.Sectors {
		rad := (9 + 18*float64(i)) * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		from := ToPixel(geometry.Point{X: calibration.Bull * sin, Y: calibration.Bull * cos})
		to := ToPixel(geometry.Point{X: calibration.OuterDoubleRing * sin, Y: calibration.OuterDoubleRing * cos})
		drawLine(dst, from, to, s.style.BoardLines)
	}

	for i, n := range calibration.Sectors {
		rad := 18 * float64(i) * math.Pi / 180
		text := strconv.Itoa(n)
		p := ToPixel(geometry.Point{X: numberRadius * math.Sin(rad), Y: numberRadius * math.Cos(rad)})
		drawLabel(dst, geometry.Point{X: p.X - float64(labelWidth(text))/2, Y: p.Y + 5}, text, s.style.BoardLines)
	}

	for _, p := range s.Points() {
		drawCross(dst, ToPixel(p), throwMarkSize, s.style.Throw)
	}
	return dst
}

// PNG encodes the sketch.
func (s *Sketch) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
