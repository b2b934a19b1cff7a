package bulb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dokzlo13/huestrip/internal/color"
)

func TestInterpreter_Color(t *testing.T) {
	ip := NewInterpreter(DefaultFadeDepth)
	warm := color.FromMired(370)
	white := color.FromXY(0.3127, 0.3290, 1)

	tests := []struct {
		name  string
		state State
		want  color.Color
	}{
		{
			name:  "off/ignores_everything_else",
			state: State{On: false, Brightness: 254, ColorMode: ColorModeCT, CT: 370},
			want:  color.Black,
		},
		{
			name:  "ct/full_brightness",
			state: State{On: true, Brightness: 254, ColorMode: ColorModeCT, CT: 370},
			want:  warm,
		},
		{
			name:  "xy/full_brightness",
			state: State{On: true, Brightness: 254, ColorMode: ColorModeXY, XY: [2]float64{0.3127, 0.3290}},
			want:  white,
		},
		{
			name:  "ct/zero_brightness",
			state: State{On: true, Brightness: 0, ColorMode: ColorModeCT, CT: 370},
			want:  color.Black,
		},
		{
			name:  "ct/half_brightness",
			state: State{On: true, Brightness: 127, ColorMode: ColorModeCT, CT: 370},
			want:  color.Mix(warm, color.Black, 50),
		},
		{
			name:  "hs/unsupported_mode",
			state: State{On: true, Brightness: 254, ColorMode: ColorModeHS},
			want:  color.Black,
		},
		{
			name:  "xy/degenerate_y",
			state: State{On: true, Brightness: 254, ColorMode: ColorModeXY, XY: [2]float64{0.3, 0}},
			want:  color.Black,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ip.Color(tt.state)
			assert.InDelta(t, tt.want.R, got.R, 1e-6)
			assert.InDelta(t, tt.want.G, got.G, 1e-6)
			assert.InDelta(t, tt.want.B, got.B, 1e-6)
		})
	}
}

func TestInterpreter_FadeDepth(t *testing.T) {
	s := State{On: true, Brightness: 0, ColorMode: ColorModeCT, CT: 153}
	base := color.FromMired(153)

	shallow := NewInterpreter(0.8).Color(s)
	assert.InDelta(t, base.R*0.2, shallow.R, 1e-6)
	assert.InDelta(t, base.B*0.2, shallow.B, 1e-6)

	assert.Equal(t, DefaultFadeDepth, NewInterpreter(0).FadeDepth)
}

func TestInterpreter_BrightnessIsMonotonic(t *testing.T) {
	ip := NewInterpreter(DefaultFadeDepth)
	prev := color.Black
	for bri := 0; bri <= MaxBrightness; bri++ {
		c := ip.Color(State{On: true, Brightness: bri, ColorMode: ColorModeCT, CT: 250})
		assert.GreaterOrEqual(t, c.R, prev.R)
		assert.GreaterOrEqual(t, c.G, prev.G)
		assert.GreaterOrEqual(t, c.B, prev.B)
		prev = c
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "off", State{}.String())
	assert.Equal(t, "on bri=254 ct=370", State{On: true, Brightness: 254, ColorMode: ColorModeCT, CT: 370}.String())
}
