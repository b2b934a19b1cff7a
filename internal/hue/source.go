// Package hue reads bulb state snapshots from a Philips Hue bridge.
package hue

import (
	"context"
	"errors"
	"fmt"

	"github.com/amimof/huego"

	"github.com/dokzlo13/huestrip/internal/bulb"
)

var (
	// ErrLightNotFound is returned when a polled light id is missing from the bridge response.
	ErrLightNotFound = errors.New("light not found")
	// ErrMalformedState is returned when a light's state cannot be interpreted.
	ErrMalformedState = errors.New("malformed light state")
)

// Source provides bulb state snapshots keyed by light id.
type Source interface {
	Lights(ctx context.Context, ids ...int) (map[int]bulb.State, error)
}

// LightsAPI is the subset of huego.Bridge the source needs.
type LightsAPI interface {
	GetLightsContext(ctx context.Context) ([]huego.Light, error)
}

// BridgeSource fetches all lights from the bridge in a single request and
// extracts the requested ones.
type BridgeSource struct {
	api LightsAPI
}

// NewBridgeSource creates a source for the bridge at address, authenticated with token.
func NewBridgeSource(address, token string) *BridgeSource {
	return NewSource(huego.New(address, token))
}

// NewSource creates a source on top of any LightsAPI implementation.
func NewSource(api LightsAPI) *BridgeSource {
	return &BridgeSource{api: api}
}

// Lights returns the state of each requested light. Either every requested
// light is returned or an error is.
func (s *BridgeSource) Lights(ctx context.Context, ids ...int) (map[int]bulb.State, error) {
	lights, err := s.api.GetLightsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lights: %w", err)
	}

	byID := make(map[int]*huego.Light, len(lights))
	for i := range lights {
		byID[lights[i].ID] = &lights[i]
	}

	result := make(map[int]bulb.State, len(ids))
	for _, id := range ids {
		light, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrLightNotFound, id)
		}
		state, err := ToState(light.State)
		if err != nil {
			return nil, fmt.Errorf("light %d: %w", id, err)
		}
		result[id] = state
	}

	return result, nil
}

// ToState converts a huego light state to a bulb snapshot.
func ToState(s *huego.State) (bulb.State, error) {
	if s == nil {
		return bulb.State{}, fmt.Errorf("%w: no state", ErrMalformedState)
	}

	state := bulb.State{
		On:         s.On,
		Brightness: int(s.Bri),
		ColorMode:  s.ColorMode,
		Reachable:  s.Reachable,
	}

	// An off bulb renders black whatever its colour fields say.
	switch s.ColorMode {
	case bulb.ColorModeCT:
		if s.Ct == 0 && s.On {
			return bulb.State{}, fmt.Errorf("%w: ct mode without ct", ErrMalformedState)
		}
		state.CT = float64(s.Ct)
	case bulb.ColorModeXY:
		if len(s.Xy) == 2 {
			state.XY = [2]float64{float64(s.Xy[0]), float64(s.Xy[1])}
		} else if s.On {
			return bulb.State{}, fmt.Errorf("%w: xy has %d components", ErrMalformedState, len(s.Xy))
		}
	}

	return state, nil
}
