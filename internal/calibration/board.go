package calibration

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jfehre/countdart/panel/internal/geometry"
)

// Board dimensions in millimetres, measured from the bull. Board space has
// its origin at the bull and Y pointing up towards the 20.
const (
	OuterDoubleRing = 170.0
	InnerDoubleRing = 162.0
	OuterTripleRing = 107.0
	InnerTripleRing = 99.0
	Bull            = 31.8 / 2
	DoubleBull      = 12.7 / 2

	segmentDegrees = 18.0
	startDegrees   = segmentDegrees / 2
)

// Sectors lists the sector numbers clockwise starting at the top.
var Sectors = [20]int{20, 1, 18, 4, 13, 6, 10, 15, 2, 17, 3, 19, 7, 16, 8, 11, 14, 9, 12, 5}

// Rings lists the ring radii drawn by the calibration guide.
var Rings = []float64{OuterDoubleRing, InnerDoubleRing, OuterTripleRing, InnerTripleRing, Bull, DoubleBull}

// ParseLabel splits a "a|b" label. Whitespace around the numbers is ignored.
func ParseLabel(label string) (int, int, error) {
	parts := strings.Split(label, "|")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("label %q: want format a|b", label)
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("label %q: %w", label, err)
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("label %q: %w", label, err)
	}
	if a < 1 || a > 20 || b < 1 || b > 20 {
		return 0, 0, fmt.Errorf("label %q: sectors must be in [1, 20]", label)
	}
	return a, b, nil
}

func sectorIndex(n int) int {
	for i, s := range Sectors {
		if s == n {
			return i
		}
	}
	return -1
}

// OuterPoint returns the board-space point where the boundary between two
// adjacent sectors meets the outer double ring.
func OuterPoint(label string) (geometry.Point, error) {
	a, b, err := ParseLabel(label)
	if err != nil {
		return geometry.Point{}, err
	}
	ai, bi := sectorIndex(a), sectorIndex(b)
	n := len(Sectors)

	var deg float64
	switch {
	case (ai+1)%n == bi:
		deg = startDegrees + segmentDegrees*float64(ai)
	case (ai-1+n)%n == bi:
		deg = startDegrees + segmentDegrees*float64(bi)
	default:
		return geometry.Point{}, fmt.Errorf("label %q: sectors are not adjacent", label)
	}

	rad := deg * math.Pi / 180
	return geometry.Point{
		X: OuterDoubleRing * math.Sin(rad),
		Y: OuterDoubleRing * math.Cos(rad),
	}, nil
}
