package geometry

import (
	"math"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	layouts := []Layout{
		{Canvas: Size{W: 790, H: 444.375}, Image: Size{W: 1280, H: 720}},
		{Canvas: Size{W: 500, H: 500}, Image: Size{W: 640, H: 480}},     // letterboxed vertically
		{Canvas: Size{W: 900, H: 300}, Image: Size{W: 640, H: 480}},     // pillarboxed
		{Canvas: Size{W: 123.5, H: 77.25}, Image: Size{W: 33, H: 1000}}, // extreme ratio
	}
	for _, l := range layouts {
		for i := 0; i < 200; i++ {
			p := Point{X: rng.Float64()*1.4 - 0.2, Y: rng.Float64()*1.4 - 0.2}
			c, ok := l.ToCanvas(p)
			if !ok {
				t.Fatalf("layout %+v not ready", l)
			}
			back, ok := l.ToNormalized(c)
			if !ok {
				t.Fatalf("layout %+v not ready", l)
			}
			if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
				t.Fatalf("round trip %v -> %v -> %v", p, c, back)
			}
		}
	}
}

func TestImageRectLetterbox(t *testing.T) {
	l := Layout{Canvas: Size{W: 500, H: 500}, Image: Size{W: 1000, H: 500}}
	offset, drawn := l.ImageRect()
	if drawn.W != 500 || drawn.H != 250 {
		t.Fatalf("drawn = %+v", drawn)
	}
	if offset.X != 0 || offset.Y != 125 {
		t.Fatalf("offset = %+v", offset)
	}

	c, _ := l.ToCanvas(Point{X: 0, Y: 0})
	if c != (Point{X: 0, Y: 125}) {
		t.Fatalf("origin maps to %+v, want letterbox corner", c)
	}
}

func TestFitCanvasKeepsAspect(t *testing.T) {
	got := FitCanvas(810, Size{W: 1600, H: 900})
	if got.W != 800 || got.H != 450 {
		t.Fatalf("FitCanvas = %+v", got)
	}

	l := Layout{Canvas: got, Image: Size{W: 1600, H: 900}}
	offset, _ := l.ImageRect()
	if offset != (Point{}) {
		t.Fatalf("fitted canvas should not letterbox, offset %+v", offset)
	}
}

func TestNotReadyIsNoop(t *testing.T) {
	l := Layout{Canvas: Size{W: 100, H: 100}}
	if _, ok := l.ToCanvas(Point{X: 0.5, Y: 0.5}); ok {
		t.Fatalf("ToCanvas must defer until the image size is known")
	}
	if _, ok := l.ToNormalized(Point{X: 5, Y: 5}); ok {
		t.Fatalf("ToNormalized must defer until the image size is known")
	}
	if FitCanvas(500, Size{}) != (Size{}) {
		t.Fatalf("FitCanvas without image dims must be empty")
	}
}

func TestDeltaToNormalizedUsesCanvas(t *testing.T) {
	l := Layout{Canvas: Size{W: 400, H: 200}, Image: Size{W: 100, H: 100}}
	d, ok := l.DeltaToNormalized(40, -20)
	if !ok || d.X != 0.1 || d.Y != -0.1 {
		t.Fatalf("delta = %+v ok=%v", d, ok)
	}
}
