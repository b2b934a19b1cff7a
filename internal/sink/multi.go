package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/dokzlo13/huestrip/internal/frame"
)

// Multi fans frames out to several sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Name implements Sink.
func (m *Multi) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Emit implements frame.Sink. Each sink receives the same frame; sinks must
// treat Colors as read-only.
func (m *Multi) Emit(f frame.Frame) {
	for _, s := range m.sinks {
		s.Emit(f)
	}
}

// Run runs every sink and returns when all of them have stopped.
func (m *Multi) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(m.sinks))
	for i, s := range m.sinks {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			errs[i] = s.Run(ctx)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}
