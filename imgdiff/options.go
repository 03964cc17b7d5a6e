package imgdiff

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Options controls the perceptual comparison.
type Options struct {
	// Tolerance is the largest CIEDE2000 colour difference (standard ΔE
	// scale, 0..~100) at which two pixels still count as equal. It has to
	// absorb lossy re-encoding noise between two independent screenshots.
	// The default is checked against JPEG quality 90, the default capture
	// quality; lower qualities put more noise on text edges and may need a
	// higher value.
	Tolerance float64

	// AntialiasingTolerance is the brightness delta (0..255) under which
	// neighbouring pixels count as identical during anti-aliasing detection.
	AntialiasingTolerance float64

	// IgnoreAntialiasing excuses differing pixels detected as anti-aliased
	// edges in either image.
	IgnoreAntialiasing bool

	// IgnoreCaret treats a difference confined to a single one-pixel-wide
	// column of cursor height (a blinking text cursor) as no difference.
	IgnoreCaret bool

	// HighlightColor paints differing pixels in the diff image.
	HighlightColor color.RGBA
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Tolerance:             5.0,
		AntialiasingTolerance: 0,
		IgnoreAntialiasing:    true,
		IgnoreCaret:           true,
		HighlightColor:        color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff},
	}
}

// ParseHexColor parses "#rrggbb" or "rrggbb" into an opaque colour.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("imgdiff: invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("imgdiff: invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
