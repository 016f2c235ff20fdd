package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/jfehre/countdart/panel/internal/geometry"
)

const (
	// LensSource is the side of the square canvas region under the cursor.
	LensSource = 50
	// LensSize is the side of the zoomed preview.
	LensSize = 200
)

// Placement is where the lens sits relative to the canvas.
type Placement struct {
	Visible bool    `json:"visible"`
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
}

// Magnifier tracks the cursor over the canvas. It is independent of the drag
// state and only remembers the last cursor position.
type Magnifier struct {
	mu      sync.Mutex
	cursor  geometry.Point
	visible bool
}

// NewMagnifier creates a hidden magnifier.
func NewMagnifier() *Magnifier {
	return &Magnifier{}
}

// Track moves the lens to p; the lens hides when p is outside the canvas.
func (m *Magnifier) Track(p geometry.Point, layout geometry.Layout) Placement {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursor = p
	m.visible = !layout.Canvas.Empty() && layout.Contains(p)
	return m.placementLocked()
}

// Hide hides the lens.
func (m *Magnifier) Hide() {
	m.mu.Lock()
	m.visible = false
	m.mu.Unlock()
}

// Placement returns the current lens position.
func (m *Magnifier) Placement() Placement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placementLocked()
}

func (m *Magnifier) placementLocked() Placement {
	if !m.visible {
		return Placement{}
	}
	return Placement{
		Visible: true,
		Left:    m.cursor.X - 75,
		Top:     m.cursor.Y - 25,
	}
}

// Render zooms the LensSource square around the cursor to LensSize. Parts
// of the square outside the canvas stay transparent. ok is false while the
// lens is hidden.
func (m *Magnifier) Render(canvas image.Image) (*image.NRGBA, bool) {
	m.mu.Lock()
	cursor, visible := m.cursor, m.visible
	m.mu.Unlock()

	if !visible || canvas == nil {
		return nil, false
	}

	cx := int(math.Round(cursor.X))
	cy := int(math.Round(cursor.Y))
	half := LensSource / 2
	src := image.Rect(cx-half, cy-half, cx+half, cy+half)

	lens := imaging.New(LensSource, LensSource, color.Transparent)
	if region := src.Intersect(canvas.Bounds()); !region.Empty() {
		lens = imaging.Paste(lens, imaging.Crop(canvas, region), region.Min.Sub(src.Min))
	}
	return imaging.Resize(lens, LensSize, LensSize, imaging.NearestNeighbor), true
}
