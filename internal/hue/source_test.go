package hue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amimof/huego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/color"
)

type fakeAPI struct {
	lights []huego.Light
	err    error
}

func (f *fakeAPI) GetLightsContext(ctx context.Context) ([]huego.Light, error) {
	return f.lights, f.err
}

func TestBridgeSource_Lights(t *testing.T) {
	api := &fakeAPI{lights: []huego.Light{
		{ID: 1, State: &huego.State{On: true, Bri: 254, ColorMode: "ct", Ct: 370, Reachable: true}},
		{ID: 2, State: &huego.State{On: false, Bri: 100, ColorMode: "xy", Xy: []float32{0.3127, 0.329}}},
		{ID: 3, State: &huego.State{On: true, Bri: 10, ColorMode: "hs"}},
	}}

	states, err := NewSource(api).Lights(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.Equal(t, bulb.State{On: true, Brightness: 254, ColorMode: "ct", CT: 370, Reachable: true}, states[1])
	assert.False(t, states[2].On)
	assert.InDelta(t, 0.3127, states[2].XY[0], 1e-6)
	assert.InDelta(t, 0.329, states[2].XY[1], 1e-6)
}

func TestBridgeSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeAPI
		wantErr error
	}{
		{
			name:    "missing_light",
			api:     &fakeAPI{lights: []huego.Light{{ID: 1, State: &huego.State{}}}},
			wantErr: ErrLightNotFound,
		},
		{
			name:    "nil_state",
			api:     &fakeAPI{lights: []huego.Light{{ID: 1}, {ID: 2, State: &huego.State{}}}},
			wantErr: ErrMalformedState,
		},
		{
			name: "short_xy",
			api: &fakeAPI{lights: []huego.Light{
				{ID: 1, State: &huego.State{On: true, ColorMode: "xy", Xy: []float32{0.3}}},
				{ID: 2, State: &huego.State{}},
			}},
			wantErr: ErrMalformedState,
		},
		{
			name: "ct_without_value",
			api: &fakeAPI{lights: []huego.Light{
				{ID: 1, State: &huego.State{On: true, ColorMode: "ct"}},
				{ID: 2, State: &huego.State{}},
			}},
			wantErr: ErrMalformedState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSource(tt.api).Lights(context.Background(), 1, 2)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestToState_OffBulbSkipsColourChecks(t *testing.T) {
	tests := []struct {
		name  string
		state *huego.State
	}{
		{"ct_without_value", &huego.State{On: false, Bri: 80, ColorMode: "ct"}},
		{"short_xy", &huego.State{On: false, Bri: 80, ColorMode: "xy", Xy: []float32{0.3}}},
		{"missing_xy", &huego.State{On: false, ColorMode: "xy"}},
	}

	ip := bulb.NewInterpreter(bulb.DefaultFadeDepth)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := ToState(tt.state)
			require.NoError(t, err)
			assert.False(t, st.On)
			assert.Equal(t, tt.state.ColorMode, st.ColorMode)
			assert.Equal(t, color.Black, ip.Color(st))
		})
	}
}

func TestBridgeSource_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewSource(&fakeAPI{err: boom}).Lights(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestLightCache(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLightCache(time.Second)
	c.now = func() time.Time { return now }

	assert.True(t, c.IsStale(1))

	red := color.Color{R: 1}
	assert.True(t, c.Set(1, bulb.State{On: true}, red), "first set is a change")
	assert.False(t, c.Set(1, bulb.State{On: true}, red), "same colour is not a change")
	assert.True(t, c.Set(1, bulb.State{}, color.Black))
	assert.False(t, c.IsStale(1))

	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, color.Black, got.Color)
	assert.Equal(t, now, got.FetchedAt)

	now = now.Add(2 * time.Second)
	assert.True(t, c.IsStale(1))
	assert.Len(t, c.Snapshot(), 1)

	c.Clear()
	_, ok = c.Get(1)
	assert.False(t, ok)
}
