package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/color"
	"github.com/dokzlo13/huestrip/internal/db"
	"github.com/dokzlo13/huestrip/internal/eventbus"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return New(d.DB)
}

func bulbChanged(light int, at time.Time) eventbus.Event {
	return eventbus.Event{
		Type:  eventbus.EventTypeBulbChanged,
		Time:  at,
		Light: light,
		Side:  "left",
		State: bulb.State{On: true, Brightness: 200, ColorMode: bulb.ColorModeXY, XY: [2]float64{0.31, 0.32}, Reachable: true},
		Color: color.Color{R: 1, G: 0.5, B: 0.2},
	}
}

func TestRecord_BulbChanged(t *testing.T) {
	h := newTestHistory(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(bulbChanged(2, at)))

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, h.RunID(), e.RunID)
	assert.Equal(t, eventbus.EventTypeBulbChanged, e.EventType)
	assert.True(t, at.Equal(e.Timestamp))
	assert.Equal(t, 2, e.Light)
	assert.Equal(t, "left", e.Side)
	assert.True(t, e.State.On)
	assert.Equal(t, 200, e.State.Brightness)
	assert.Equal(t, bulb.ColorModeXY, e.State.ColorMode)
	assert.InDelta(t, 0.31, e.State.XY[0], 1e-9)
	assert.Equal(t, color.RGB{R: 255, G: 127.5, B: 51}, e.Color)
	assert.Empty(t, e.Error)
}

func TestRecord_PollFailedDeduplicated(t *testing.T) {
	h := newTestHistory(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fail := func(msg string, ts time.Time) eventbus.Event {
		return eventbus.Event{Type: eventbus.EventTypePollFailed, Time: ts, Err: errors.New(msg)}
	}

	require.NoError(t, h.Record(fail("bridge unreachable", at)))
	require.NoError(t, h.Record(fail("bridge unreachable", at.Add(time.Second))))
	require.NoError(t, h.Record(fail("timeout", at.Add(2*time.Second))))
	require.NoError(t, h.Record(fail("timeout", at.Add(2*time.Second+FailureWindow))))

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "timeout", entries[0].Error)
	assert.Equal(t, "timeout", entries[1].Error)
	assert.Equal(t, "bridge unreachable", entries[2].Error)
}

func TestRecord_ChangeResetsFailureDedup(t *testing.T) {
	h := newTestHistory(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fail := eventbus.Event{Type: eventbus.EventTypePollFailed, Time: at, Err: errors.New("down")}

	require.NoError(t, h.Record(fail))
	require.NoError(t, h.Record(bulbChanged(1, at.Add(time.Second))))
	fail.Time = at.Add(2 * time.Second)
	require.NoError(t, h.Record(fail))

	entries, err := h.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecord_UnknownType(t *testing.T) {
	h := newTestHistory(t)
	assert.Error(t, h.Record(eventbus.Event{Type: "nope"}))
}

func TestForLight(t *testing.T) {
	h := newTestHistory(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(bulbChanged(1, at)))
	require.NoError(t, h.Record(bulbChanged(2, at.Add(time.Second))))
	require.NoError(t, h.Record(bulbChanged(1, at.Add(2*time.Second))))

	entries, err := h.ForLight(1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestDeleteOlderThan(t *testing.T) {
	h := newTestHistory(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.NoError(t, h.Record(bulbChanged(1, now.Add(-10*24*time.Hour))))
	require.NoError(t, h.Record(bulbChanged(1, now.Add(-time.Hour))))

	deleted, err := h.DeleteOlderThan(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := h.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSubscribe(t *testing.T) {
	h := newTestHistory(t)
	bus := eventbus.New()
	h.Subscribe(bus)

	bus.Publish(bulbChanged(2, time.Time{}))
	bus.Publish(eventbus.Event{Type: eventbus.EventTypePollFailed, Err: errors.New("down")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus.Close(ctx)

	entries, err := h.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
