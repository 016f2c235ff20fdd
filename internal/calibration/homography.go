package calibration

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/notify"
)

// guideSamples is the number of segments each ring polyline is split into.
const guideSamples = 72

// Homography is a 3x3 projective transform stored row-major with H[8] == 1.
type Homography [9]float64

// FitHomography solves the transform mapping each src point onto dst. Both
// slices must hold four points with no three of them collinear.
func FitHomography(src, dst []geometry.Point) (Homography, error) {
	if len(src) != NumPoints || len(dst) != NumPoints {
		return Homography{}, notify.ValidationError("calibration.homography", "need %d point pairs", NumPoints)
	}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < NumPoints; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -x * X, -x * Y})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -y * X, -y * Y})
		b.SetVec(2*i, x)
		b.SetVec(2*i+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, notify.ValidationError("calibration.homography", "degenerate point set: %v", err)
	}

	var out Homography
	for i := 0; i < 8; i++ {
		out[i] = h.AtVec(i)
	}
	out[8] = 1
	return out, nil
}

// Apply maps p through the transform. ok is false when p lands on the line
// at infinity.
func (h Homography) Apply(p geometry.Point) (geometry.Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return geometry.Point{}, false
	}
	return geometry.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// BoardToImage fits the transform from board space (millimetres, Y up) to
// the normalized image positions of the four points.
func BoardToImage(points []Point) (Homography, error) {
	if len(points) != NumPoints {
		return Homography{}, notify.ValidationError("calibration.homography", "need %d points, got %d", NumPoints, len(points))
	}
	src := make([]geometry.Point, NumPoints)
	dst := make([]geometry.Point, NumPoints)
	for i, p := range points {
		board, err := OuterPoint(p.Label)
		if err != nil {
			return Homography{}, notify.ValidationError("calibration.homography", "%v", err)
		}
		src[i] = board
		dst[i] = p.Pos()
	}
	return FitHomography(src, dst)
}

// Guide projects the board rings through the current calibration into canvas
// pixels. Each returned polyline is closed (first point repeated at the end).
// Returns nil while the layout is not ready or the points are degenerate.
func Guide(points []Point, layout geometry.Layout) [][]geometry.Point {
	if !layout.Ready() {
		return nil
	}
	h, err := BoardToImage(points)
	if err != nil {
		return nil
	}

	rings := make([][]geometry.Point, 0, len(Rings))
	for _, r := range Rings {
		line := make([]geometry.Point, 0, guideSamples+1)
		for i := 0; i <= guideSamples; i++ {
			theta := 2 * math.Pi * float64(i) / guideSamples
			img, ok := h.Apply(geometry.Point{X: r * math.Sin(theta), Y: r * math.Cos(theta)})
			if !ok {
				line = nil
				break
			}
			c, _ := layout.ToCanvas(img)
			line = append(line, c)
		}
		if line != nil {
			rings = append(rings, line)
		}
	}
	return rings
}
