package bulb

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/color"
)

// DefaultFadeDepth fades a bulb at brightness 0 all the way to black.
const DefaultFadeDepth = 1.0

// Interpreter turns bulb snapshots into colours.
type Interpreter struct {
	// FadeDepth scales the brightness fade. 1 fades to black at brightness 0,
	// 0.8 leaves a fifth of the base colour.
	FadeDepth float64
}

// NewInterpreter creates an interpreter. A non-positive fadeDepth uses DefaultFadeDepth.
func NewInterpreter(fadeDepth float64) *Interpreter {
	if fadeDepth <= 0 {
		fadeDepth = DefaultFadeDepth
	}
	return &Interpreter{FadeDepth: fadeDepth}
}

// Base returns the bulb colour before the brightness fade.
func (i *Interpreter) Base(s State) color.Color {
	if !s.On {
		return color.Black
	}

	switch s.ColorMode {
	case ColorModeCT:
		return color.FromMired(s.CT)
	case ColorModeXY:
		c, err := color.FromXYChecked(s.XY[0], s.XY[1], 1)
		if err != nil {
			log.Debug().
				Err(err).
				Float64("x", s.XY[0]).
				Float64("y", s.XY[1]).
				Msg("Unusable xy colour, using black")
		}
		return c
	default:
		return color.Black
	}
}

// Color returns the authoritative display colour for a snapshot.
func (i *Interpreter) Color(s State) color.Color {
	base := i.Base(s)
	fade := (1 - float64(s.Brightness)/MaxBrightness) * 100 * i.FadeDepth
	return color.Mix(base, color.Black, fade)
}
