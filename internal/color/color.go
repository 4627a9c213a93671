// Package color provides the immutable RGB value type used for bulb state.
package color

import (
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/bulbfleet/bulbd/internal/errors"
)

// Color is an immutable 8-bit-per-channel RGB value.
type Color struct {
	r, g, b uint8
}

// New creates a Color from its three channels.
func New(r, g, b uint8) Color {
	return Color{r: r, g: g, b: b}
}

// FromPackedInt creates a Color from a packed 24-bit integer
// (red<<16 | green<<8 | blue). Higher bits are ignored.
func FromPackedInt(n int) Color {
	return Color{
		r: uint8((n >> 16) & 0xff),
		g: uint8((n >> 8) & 0xff),
		b: uint8(n & 0xff),
	}
}

// FromHex parses a hex color string. Input is normalized first: surrounding
// whitespace is stripped, a missing leading '#' is tolerated, and both the
// short ("#abc") and long ("#aabbcc") forms are accepted in any case.
// A malformed string fails with ErrValidation.
func FromHex(s string) (Color, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(normalized, "#") {
		normalized = "#" + normalized
	}
	if len(normalized) != 4 && len(normalized) != 7 {
		return Color{}, errors.Validationf("hex color value %q is invalid", s)
	}
	c, err := colorful.Hex(normalized)
	if err != nil {
		return Color{}, errors.Validationf("hex color value %q is invalid", s)
	}
	r, g, b := c.RGB255()
	return Color{r: r, g: g, b: b}, nil
}

// RGB returns the three channels.
func (c Color) RGB() (r, g, b uint8) {
	return c.r, c.g, c.b
}

// PackedInt returns the packed 24-bit integer form.
func (c Color) PackedInt() int {
	return int(c.r)<<16 | int(c.g)<<8 | int(c.b)
}

// Hex returns the normalized "#rrggbb" form.
func (c Color) Hex() string {
	return colorful.Color{
		R: float64(c.r) / 255.0,
		G: float64(c.g) / 255.0,
		B: float64(c.b) / 255.0,
	}.Hex()
}

func (c Color) String() string {
	return c.Hex()
}
