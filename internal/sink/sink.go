// Package sink delivers strip frames to their destinations: the rgbd daemon,
// an MQTT broker, Redis pub/sub, a directly attached SPI strip or the terminal.
//
// Every sink is fire-and-forget. Emit never blocks the render loop; frames that
// cannot be delivered in time are replaced by newer ones.
package sink

import (
	"context"

	"github.com/dokzlo13/huestrip/internal/frame"
)

// Sink is a frame destination with its own delivery goroutine.
type Sink interface {
	frame.Sink
	// Name identifies the sink in logs.
	Name() string
	// Run delivers frames until ctx is cancelled, then flushes the newest
	// pending frame best-effort and releases resources.
	Run(ctx context.Context) error
}

// mailbox holds at most one pending frame; a new frame replaces an undelivered one.
type mailbox struct {
	ch chan frame.Frame
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan frame.Frame, 1)}
}

// put stores f, discarding any frame still waiting.
func (m *mailbox) put(f frame.Frame) {
	for {
		select {
		case m.ch <- f:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// take returns the pending frame without waiting.
func (m *mailbox) take() (frame.Frame, bool) {
	select {
	case f := <-m.ch:
		return f, true
	default:
		return frame.Frame{}, false
	}
}

// C exposes the mailbox for select loops.
func (m *mailbox) C() <-chan frame.Frame {
	return m.ch
}
