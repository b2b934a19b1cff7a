// Package eventbus fans poll pipeline events out to subscribers on a small
// worker pool. Publishing never blocks the poller: when the queue is full the
// event is dropped and counted.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/color"
)

// EventType names what happened in the pipeline.
type EventType string

const (
	// EventTypeBulbChanged fires when a light's derived colour differs from the last poll.
	EventTypeBulbChanged EventType = "bulb_changed"
	// EventTypePollFailed fires on every failed poll.
	EventTypePollFailed EventType = "poll_failed"
)

// Default configuration
const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 100
)

// Event is a pipeline occurrence.
// Light, Side, State and Color are set for bulb_changed; Err for poll_failed.
type Event struct {
	Type  EventType
	Time  time.Time
	Light int
	Side  string
	State bulb.State
	Color color.Color
	Err   error
}

// Handler consumes events. Handlers run on pool workers, possibly concurrently.
type Handler func(Event)

// Stats are delivery counters.
type Stats struct {
	Queued    uint64 `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
}

type delivery struct {
	event   Event
	handler Handler
}

// Bus delivers events to handlers registered per type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	queue   chan delivery
	workers sync.WaitGroup

	// Publishers hold gate for reading while they enqueue; Close takes it for
	// writing before closing the queue.
	gate    sync.RWMutex
	closed  atomic.Bool
	closing sync.Once

	queued    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// New creates a bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus with the given worker count and queue size.
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize < 0 {
		queueSize = 0
	}

	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queue:    make(chan delivery, queueSize),
	}

	b.workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go b.work(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus started")
	return b
}

func (b *Bus) work(id int) {
	defer b.workers.Done()
	for d := range b.queue {
		b.deliver(id, d)
	}
}

func (b *Bus) deliver(worker int, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			log.Error().
				Interface("panic", r).
				Str("event_type", string(d.event.Type)).
				Int("worker", worker).
				Msg("Event handler panicked")
		}
	}()
	d.handler(d.event)
	b.delivered.Add(1)
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues event for every handler of its type. It never blocks; events
// are dropped when the queue is full or the bus is closed.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	b.gate.RLock()
	defer b.gate.RUnlock()

	if b.closed.Load() {
		b.dropped.Add(uint64(len(handlers)))
		log.Debug().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		return
	}

	for _, h := range handlers {
		select {
		case b.queue <- delivery{event: event, handler: h}:
			b.queued.Add(1)
		default:
			b.dropped.Add(1)
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus queue full, dropping event")
		}
	}
}

// Stats returns a snapshot of the delivery counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Queued:    b.queued.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Panics:    b.panics.Load(),
	}
}

// Close stops accepting events and waits until queued ones are handled or
// ctx expires. Safe to call more than once.
func (b *Bus) Close(ctx context.Context) {
	b.closing.Do(func() {
		b.gate.Lock()
		b.closed.Store(true)
		close(b.queue)
		b.gate.Unlock()
	})

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
