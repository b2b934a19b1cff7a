package color

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertRGB compares in wire units.
func assertRGB(t *testing.T, want RGB, got Color, delta float64) {
	t.Helper()
	w := ToRGB(got)
	assert.InDelta(t, want.R, w.R, delta, "red")
	assert.InDelta(t, want.G, w.G, delta, "green")
	assert.InDelta(t, want.B, w.B, delta, "blue")
}

func TestMix(t *testing.T) {
	red := Color{R: 1}
	blue := Color{B: 1}

	tests := []struct {
		name   string
		amount float64
		want   RGB
	}{
		{"zero_keeps_first", 0, RGB{R: 255}},
		{"hundred_gives_second", 100, RGB{B: 255}},
		{"half", 50, RGB{R: 127.5, B: 127.5}},
		{"quarter", 25, RGB{R: 191.25, B: 63.75}},
		{"overshoot_is_clamped", 150, RGB{R: 0, B: 255}},
		{"negative_is_clamped", -50, RGB{R: 255, B: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRGB(t, tt.want, Mix(red, blue, tt.amount), 1e-9)
		})
	}
}

func TestMix_EndpointsAreExact(t *testing.T) {
	c := Color{R: 0.3, G: 0.7, B: 0.11}
	assert.Equal(t, c, Mix(c, Black, 0))
	assert.Equal(t, c, Mix(Black, c, 100))
}

func TestSanitize(t *testing.T) {
	c := Sanitize(Color{R: math.NaN(), G: math.Inf(1), B: 1.2})
	assert.Equal(t, Color{R: 0, G: 0, B: 1}, c)
	assert.True(t, IsFinite(c))
	assert.False(t, IsFinite(Color{R: math.NaN()}))

	in := Color{R: 0.25, G: 0.5, B: 1}
	assert.Equal(t, in, Sanitize(in))
}

func TestToRGB(t *testing.T) {
	assert.Equal(t, RGB{R: 255, G: 0, B: 127.5}, ToRGB(Color{R: 1, B: 0.5}))
	assert.Equal(t, "rgb(255.0,0.0,127.5)", ToRGB(Color{R: 1, B: 0.5}).String())
}

func TestFromMired_KnownValues(t *testing.T) {
	// 6600K and below keeps red saturated.
	warm := ToRGB(FromMired(KelvinToMired(2700)))
	assert.Equal(t, 255.0, warm.R)
	assert.InDelta(t, 167, warm.G, 2)
	assert.InDelta(t, 87, warm.B, 2)

	// Above 6600K blue is saturated.
	cool := FromMired(KelvinToMired(10000))
	assert.Equal(t, 1.0, cool.B)
	assert.Less(t, cool.R, 1.0)

	// Very warm: no blue at all.
	assert.Equal(t, 0.0, FromMired(KelvinToMired(1500)).B)
}

func TestFromMired_ChannelsInRange(t *testing.T) {
	for mired := 1.0; mired <= 1000; mired += 0.5 {
		c := FromMired(mired)
		require.True(t, c.IsValid(), "mired %v", mired)
	}
}

func TestFromMired_Continuous(t *testing.T) {
	prev := ToRGB(FromMired(100))
	for mired := 100.25; mired <= 600; mired += 0.25 {
		cur := FromMired(mired)
		assertRGB(t, prev, cur, 6)
		prev = ToRGB(cur)
	}
}

func TestFromMired_StepAt6600K(t *testing.T) {
	// Both sides of the switch evaluated at exactly temp 66.
	assert.Equal(t, MaxChannel, math.Min(MaxChannel, coolRed(66)))
	assert.InDelta(t, 3.340, MaxChannel-coolGreen(66), 0.005)
	assert.InDelta(t, 2.462, MaxChannel-warmBlue(66), 0.005)
	assert.Greater(t, warmGreen(66), MaxChannel)
}

func TestFromMired_BlueFloorIsContinuous(t *testing.T) {
	// The warm blue fit crosses zero just above temp 19.
	assert.InDelta(t, 0, warmBlue(19), 0.7)
	assert.Less(t, warmBlue(19), 0.0)

	below := FromMired(KelvinToMired(1899))
	above := FromMired(KelvinToMired(1901))
	assert.Equal(t, 0.0, below.B)
	assert.Equal(t, 0.0, above.B)
	assertRGB(t, ToRGB(below), above, 0.2)
}

func TestFromMired_InvalidInput(t *testing.T) {
	assert.Equal(t, Black, FromMired(0))
	assert.Equal(t, Black, FromMired(-10))
	assert.Equal(t, Black, FromMired(math.NaN()))
	assert.Equal(t, Black, FromMired(math.Inf(1)))
}

func TestFromXY_D65IsWhite(t *testing.T) {
	c := FromXY(0.3127, 0.3290, 1.0)
	assertRGB(t, RGB{R: 255, G: 255, B: 255}, c, 1)
}

func TestFromXY_BrightestChannelIsNormalized(t *testing.T) {
	// Saturated red corner of the Hue gamut.
	c := FromXY(0.675, 0.322, 1.0)
	assert.InDelta(t, 1, c.R, 1e-9)
	assert.Less(t, c.G, c.R)
	assert.Less(t, c.B, c.R)
	assert.GreaterOrEqual(t, c.G, 0.0)
	assert.GreaterOrEqual(t, c.B, 0.0)
}

func TestFromXY_DarkBrightnessStaysBelowOne(t *testing.T) {
	c := FromXY(0.3127, 0.3290, 0.1)
	assert.Less(t, c.R, 1.0)
	assert.Greater(t, c.R, 0.0)
}

func TestFromXYChecked_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
	}{
		{"zero_y", 0.3, 0},
		{"nan_x", math.NaN(), 0.3},
		{"inf_x", math.Inf(1), 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromXYChecked(tt.x, tt.y, 1)
			assert.ErrorIs(t, err, ErrDegenerateChromaticity)
			assert.Equal(t, Black, c)
			assert.Equal(t, Black, FromXY(tt.x, tt.y, 1))
		})
	}
}
