// Package frame packages smoothed strip colours into frames for a frame sink.
package frame

import (
	"encoding/json"
	"sync/atomic"

	"github.com/dokzlo13/huestrip/internal/color"
	"github.com/dokzlo13/huestrip/internal/strip"
)

// EventName is the event under which frames are emitted to rgbd.
const EventName = "frame"

// Frame is one full strip update. Channels are in [0,255].
type Frame struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Colors []color.RGB `json:"colors"`
}

// JSON encodes the frame payload.
func (f Frame) JSON() ([]byte, error) {
	return json.Marshal(f)
}

// Sink accepts frames. Emit must not block and must not retain f.Colors beyond
// what it needs for delivery; a dropped frame is superseded by the next one.
type Sink interface {
	Emit(f Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

// Emit implements Sink.
func (fn SinkFunc) Emit(f Frame) { fn(f) }

// Emitter stamps buffers with the strip identity and hands them to a sink.
type Emitter struct {
	id   int
	name string
	sink Sink

	emitted atomic.Uint64
}

// NewEmitter creates an emitter for strip id/name.
func NewEmitter(id int, name string, sink Sink) *Emitter {
	return &Emitter{id: id, name: name, sink: sink}
}

// Emit sends colors as a frame in wire units. The caller keeps ownership of colors.
func (e *Emitter) Emit(colors strip.Buffer) {
	e.sink.Emit(Frame{
		ID:     e.id,
		Name:   e.name,
		Colors: Wire(colors),
	})
	e.emitted.Add(1)
}

// Wire scales engine colours to the 0..255 wire form.
func Wire(colors strip.Buffer) []color.RGB {
	out := make([]color.RGB, len(colors))
	for i, c := range colors {
		out[i] = color.ToRGB(c)
	}
	return out
}

// Emitted returns how many frames have been handed to the sink.
func (e *Emitter) Emitted() uint64 {
	return e.emitted.Load()
}
