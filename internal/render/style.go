// Package render draws the calibration canvas, the magnifier lens and the
// dartboard sketch, and runs the redraw loop that publishes encoded frames.
package render

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Style holds the colors used by the canvas and the sketch.
type Style struct {
	Background color.RGBA
	Target     color.RGBA
	Guide      color.RGBA
	Board      color.RGBA
	BoardLines color.RGBA
	Throw      color.RGBA
}

// DefaultStyle returns red targets and orange throws on a dark canvas.
func DefaultStyle() Style {
	return Style{
		Background: color.RGBA{R: 32, G: 32, B: 32, A: 255},
		Target:     color.RGBA{R: 255, A: 255},
		Guide:      color.RGBA{G: 200, B: 255, A: 255},
		Board:      color.RGBA{R: 255, G: 255, B: 255, A: 255},
		BoardLines: color.RGBA{A: 255},
		Throw:      color.RGBA{R: 255, G: 136, A: 255},
	}
}

// ParseColor parses a "#rrggbb" or "#rgb" hex color.
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("parse color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// StyleColors is the hex form of a Style, as it appears in configuration.
type StyleColors struct {
	Background string `toml:"background"`
	Target     string `toml:"target"`
	Guide      string `toml:"guide"`
	Board      string `toml:"board"`
	BoardLines string `toml:"board_lines"`
	Throw      string `toml:"throw"`
}

// Resolve parses every non-empty color over the defaults.
func (sc StyleColors) Resolve() (Style, error) {
	style := DefaultStyle()
	fields := []struct {
		hex string
		dst *color.RGBA
	}{
		{sc.Background, &style.Background},
		{sc.Target, &style.Target},
		{sc.Guide, &style.Guide},
		{sc.Board, &style.Board},
		{sc.BoardLines, &style.BoardLines},
		{sc.Throw, &style.Throw},
	}
	for _, f := range fields {
		if f.hex == "" {
			continue
		}
		c, err := ParseColor(f.hex)
		if err != nil {
			return Style{}, err
		}
		*f.dst = c
	}
	return style, nil
}
