package color

import "math"

// FromMired converts a colour temperature in mired (1e6/K) to a colour using
// Tanner Helland's black-body fits. Non-positive or non-finite input yields black.
//
// The fits switch at 6600K and do not meet exactly there: crossing to the cool
// side green drops by about 3.3/255 and blue rises by about 2.5/255.
func FromMired(mired float64) Color {
	if !(mired > 0) || math.IsInf(mired, 0) {
		return Black
	}

	temp := 1000000 / mired / 100

	var r, g, b float64
	if temp <= 66 {
		r, g = MaxChannel, warmGreen(temp)
	} else {
		r, g = coolRed(temp), coolGreen(temp)
	}

	switch {
	case temp >= 66:
		b = MaxChannel
	case temp <= 19:
		b = 0
	default:
		b = warmBlue(temp)
	}

	return Sanitize(Color{R: r / MaxChannel, G: g / MaxChannel, B: b / MaxChannel})
}

// KelvinToMired converts a temperature in Kelvin to mired.
func KelvinToMired(kelvin float64) float64 {
	return 1000000 / kelvin
}

// Fits take temp in hundreds of Kelvin and return a 0..255 channel, unclamped.

func coolRed(temp float64) float64 {
	return 329.698727446 * math.Pow(temp-60, -0.1332047592)
}

func warmGreen(temp float64) float64 {
	return 99.4708025861*math.Log(temp) - 161.1195681661
}

func coolGreen(temp float64) float64 {
	return 288.1221695283 * math.Pow(temp-60, -0.0755148492)
}

func warmBlue(temp float64) float64 {
	return 138.5177312231*math.Log(temp-10) - 305.0447927307
}
