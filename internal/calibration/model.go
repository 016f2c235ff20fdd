// Package calibration holds the four control points a user drags onto a
// camera frame so the backend can compute the board homography.
package calibration

import (
	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/notify"
)

const (
	// NumPoints is the fixed size of a calibration point set.
	NumPoints = 4
	// ShapeRadius is the hit/draw radius in normalized units of canvas width.
	ShapeRadius = 0.01
)

// DefaultLabels are the sector crossings each index stands for.
var DefaultLabels = [NumPoints]string{"20|1", "6|10", "3|19", "11|14"}

var defaultPositions = [NumPoints]geometry.Point{
	{X: 0.1, Y: 0.1},
	{X: 0.2, Y: 0.1},
	{X: 0.3, Y: 0.1},
	{X: 0.4, Y: 0.1},
}

// Point is a calibration target in normalized image space.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Pos returns the point's coordinates.
func (p Point) Pos() geometry.Point { return geometry.Point{X: p.X, Y: p.Y} }

// Shape is the render-only projection of a Point.
type Shape struct {
	X      float64
	Y      float64
	Radius float64
	Label  string
}

// Model owns exactly four points. Labels stay bound to their index; only the
// coordinates move. Model is not safe for concurrent use.
type Model struct {
	points [NumPoints]Point
}

// NewModel adopts saved when it holds exactly four points and falls back to
// the default layout otherwise.
func NewModel(saved []Point) *Model {
	m := &Model{}
	if err := m.LoadFrom(saved); err != nil {
		m.InitDefaults()
	}
	return m
}

// InitDefaults places the four points at the fallback layout.
func (m *Model) InitDefaults() {
	for i := range m.points {
		m.points[i] = Point{
			X:     defaultPositions[i].X,
			Y:     defaultPositions[i].Y,
			Label: DefaultLabels[i],
		}
	}
}

// LoadFrom adopts pts verbatim. Anything other than four points is rejected
// and leaves the model untouched.
func (m *Model) LoadFrom(pts []Point) error {
	if len(pts) != NumPoints {
		return notify.ValidationError("calibration.load", "need %d points, got %d", NumPoints, len(pts))
	}
	copy(m.points[:], pts)
	return nil
}

// HitTest returns the lowest index whose circle contains the canvas pixel p.
func (m *Model) HitTest(p geometry.Point, layout geometry.Layout) (int, bool) {
	r := ShapeRadius * layout.Canvas.W
	for i, pt := range m.points {
		c, ok := layout.ToCanvas(pt.Pos())
		if !ok {
			return -1, false
		}
		dx, dy := p.X-c.X, p.Y-c.Y
		if dx*dx+dy*dy < r*r {
			return i, true
		}
	}
	return -1, false
}

// Move shifts point i by a normalized delta. Coordinates are not clamped;
// out-of-range values are passed to the backend as they are.
func (m *Model) Move(i int, dx, dy float64) bool {
	if i < 0 || i >= NumPoints {
		return false
	}
	m.points[i].X += dx
	m.points[i].Y += dy
	return true
}

// Reset restores all four points to the default layout.
func (m *Model) Reset() {
	m.InitDefaults()
}

// Point returns point i.
func (m *Model) Point(i int) Point {
	return m.points[i]
}

// Export returns the points in index order.
func (m *Model) Export() []Point {
	out := make([]Point, NumPoints)
	copy(out, m.points[:])
	return out
}

// Shapes returns the drawable projection of the points.
func (m *Model) Shapes() []Shape {
	shapes := make([]Shape, NumPoints)
	for i, p := range m.points {
		shapes[i] = Shape{X: p.X, Y: p.Y, Radius: ShapeRadius, Label: p.Label}
	}
	return shapes
}
