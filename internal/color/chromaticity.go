package color

import (
	"errors"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrDegenerateChromaticity is returned when an xy pair cannot be converted,
// typically because y is zero.
var ErrDegenerateChromaticity = errors.New("degenerate chromaticity")

// FromXY converts CIE 1931 xy chromaticity and a brightness scalar (nominally 1)
// to a colour. Degenerate input yields black.
func FromXY(x, y, brightness float64) Color {
	c, _ := FromXYChecked(x, y, brightness)
	return c
}

// FromXYChecked is FromXY that also reports degenerate input.
//
// This is a rough inverse of the bridge's RGB to xy transform: it gets close but
// it is not exact.
func FromXYChecked(x, y, brightness float64) (Color, error) {
	if y == 0 {
		return Black, ErrDegenerateChromaticity
	}

	Y := brightness
	X := (Y / y) * x
	Z := (Y / y) * (1 - x - y)

	c := colorful.LinearRgb(
		X*1.612-Y*0.203-Z*0.302,
		-X*0.509+Y*1.412+Z*0.066,
		X*0.026-Y*0.072+Z*0.962,
	)
	c = Color{R: math.Max(0, c.R), G: math.Max(0, c.G), B: math.Max(0, c.B)}
	if !IsFinite(c) {
		return Black, ErrDegenerateChromaticity
	}

	// Uniform scale keeps the hue, brightest channel becomes 1
	if maxv := math.Max(c.R, math.Max(c.G, c.B)); maxv > 1 {
		c = Color{R: c.R / maxv, G: c.G / maxv, B: c.B / maxv}
	}
	return c, nil
}
