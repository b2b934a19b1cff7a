// Package strip holds the per-pixel colour buffers of the LED strip: the gradient
// target produced by the poll loop and the temporal smoother run by the render loop.
package strip

import (
	"sync/atomic"

	"github.com/dokzlo13/huestrip/internal/color"
)

// Buffer is one colour per pixel, indexed by physical position.
type Buffer []color.Color

// NewBuffer returns n black pixels.
func NewBuffer(n int) Buffer {
	if n < 0 {
		n = 0
	}
	return make(Buffer, n)
}

// Clone returns a copy that shares no memory with b.
func (b Buffer) Clone() Buffer {
	out := make(Buffer, len(b))
	copy(out, b)
	return out
}

// Gradient interpolates linearly from left (pixel 0) toward right (pixel n-1).
// Pixel i is Mix(left, right, i/n*100), so the last pixel approaches but does not
// reach right.
func Gradient(left, right color.Color, n int) Buffer {
	buf := NewBuffer(n)
	for i := range buf {
		buf[i] = color.Mix(left, right, float64(i)/float64(n)*100)
	}
	return buf
}

// Target publishes the latest gradient from the poll loop to the render loop.
// Buffers passed to Store must not be modified afterwards; readers always see
// either the previous or the new buffer in full.
type Target struct {
	buf atomic.Pointer[Buffer]
}

// NewTarget creates a target holding initial.
func NewTarget(initial Buffer) *Target {
	t := &Target{}
	t.Store(initial)
	return t
}

// Store replaces the target buffer.
func (t *Target) Store(b Buffer) {
	t.buf.Store(&b)
}

// Load returns the current target buffer. Callers must treat it as read-only.
func (t *Target) Load() Buffer {
	if p := t.buf.Load(); p != nil {
		return *p
	}
	return nil
}
