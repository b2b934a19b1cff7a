// Package color derives displayable RGB values from Hue bulb colour parameters.
//
// All conversions here are approximations tuned for ambient lighting. They are not
// colorimetrically exact and do not round-trip with the bridge's forward transforms.
package color

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// MaxChannel is the upper bound of a wire channel value.
const MaxChannel = 255.0

// Color is an engine colour with channels in [0,1].
type Color = colorful.Color

// Black is the zero colour.
var Black = Color{}

// Sanitize bounds every channel to [0,1]. Non-finite channels become 0.
func Sanitize(c Color) Color {
	if c.IsValid() {
		return c
	}
	return Color{R: finite(c.R), G: finite(c.G), B: finite(c.B)}.Clamped()
}

// IsFinite reports whether no channel of c is NaN or infinite.
func IsFinite(c Color) bool {
	return isFinite(c.R) && isFinite(c.G) && isFinite(c.B)
}

// Mix blends a toward b. amount is a percentage: 0 returns a, 100 returns b.
// Values outside [0,100] extrapolate and the result is clamped to [0,1].
func Mix(a, b Color, amount float64) Color {
	return Sanitize(a.BlendRgb(b, amount/100))
}

// RGB is the wire form of a colour, channels in [0,255]. Channels are not rounded.
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// ToRGB scales an engine colour to the wire range.
func ToRGB(c Color) RGB {
	return RGB{R: c.R * MaxChannel, G: c.G * MaxChannel, B: c.B * MaxChannel}
}

// String implements fmt.Stringer.
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%.1f,%.1f,%.1f)", c.R, c.G, c.B)
}

func finite(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
