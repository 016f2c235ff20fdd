package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/jfehre/countdart/panel/internal/geometry"
)

func fill(dst *image.RGBA, c color.RGBA) {
	pix := dst.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
}

func setPixel(dst *image.RGBA, x, y int, c color.RGBA) {
	if !(image.Point{X: x, Y: y}.In(dst.Rect)) {
		return
	}
	dst.SetRGBA(x, y, c)
}

// drawLine draws a 1px line from a to b, clipped to dst.
func drawLine(dst *image.RGBA, a, b geometry.Point, c color.RGBA) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		setPixel(dst, int(math.Round(a.X)), int(math.Round(a.Y)), c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		setPixel(dst, int(math.Round(a.X+dx*t)), int(math.Round(a.Y+dy*t)), c)
	}
}

func drawPolyline(dst *image.RGBA, pts []geometry.Point, c color.RGBA) {
	for i := 1; i < len(pts); i++ {
		drawLine(dst, pts[i-1], pts[i], c)
	}
}

func drawCircle(dst *image.RGBA, center geometry.Point, r float64, c color.RGBA) {
	n := int(math.Max(16, math.Ceil(2*math.Pi*r)))
	prev := geometry.Point{X: center.X + r, Y: center.Y}
	for i := 1; i <= n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		next := geometry.Point{X: center.X + r*math.Cos(theta), Y: center.Y + r*math.Sin(theta)}
		drawLine(dst, prev, next, c)
		prev = next
	}
}

// drawCross draws a "+" with arms of length size around center.
func drawCross(dst *image.RGBA, center geometry.Point, size float64, c color.RGBA) {
	drawLine(dst, geometry.Point{X: center.X - size, Y: center.Y}, geometry.Point{X: center.X + size, Y: center.Y}, c)
	drawLine(dst, geometry.Point{X: center.X, Y: center.Y - size}, geometry.Point{X: center.X, Y: center.Y + size}, c)
}

// drawLabel draws text with its baseline starting at pos.
func drawLabel(dst *image.RGBA, pos geometry.Point, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(math.Round(pos.X)), int(math.Round(pos.Y))),
	}
	d.DrawString(text)
}

// labelWidth returns the advance width of text in pixels.
func labelWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Round()
}
