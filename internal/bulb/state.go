// Package bulb interprets a Hue bulb state snapshot as a single display colour.
package bulb

import (
	"fmt"
)

// Colour modes reported by the bridge.
const (
	ColorModeCT = "ct"
	ColorModeXY = "xy"
	ColorModeHS = "hs"
)

// MaxBrightness is the top of the bridge brightness range.
const MaxBrightness = 254

// State is a read-only snapshot of one bulb.
// CT is meaningful only when ColorMode is "ct", XY only when it is "xy".
type State struct {
	On         bool       `json:"on"`
	Brightness int        `json:"bri"`
	ColorMode  string     `json:"colormode,omitempty"`
	CT         float64    `json:"ct,omitempty"`
	XY         [2]float64 `json:"xy"`
	Reachable  bool       `json:"reachable"`
}

// String implements fmt.Stringer.
func (s State) String() string {
	if !s.On {
		return "off"
	}
	switch s.ColorMode {
	case ColorModeCT:
		return fmt.Sprintf("on bri=%d ct=%.0f", s.Brightness, s.CT)
	case ColorModeXY:
		return fmt.Sprintf("on bri=%d xy=(%.4f,%.4f)", s.Brightness, s.XY[0], s.XY[1])
	default:
		return fmt.Sprintf("on bri=%d mode=%q", s.Brightness, s.ColorMode)
	}
}
