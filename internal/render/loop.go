// Package render runs the fixed-rate smoothing and emission loop.
package render

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/frame"
	"github.com/dokzlo13/huestrip/internal/strip"
)

// Loop owns the displayed buffer. On every tick it decays the displayed colours
// toward the latest target and emits them as a frame.
type Loop struct {
	fps         int
	target      *strip.Target
	smoother    *strip.Smoother
	emitter     *frame.Emitter
	blankOnExit bool
	now         func() time.Time

	panicked bool
}

// Options configures a Loop.
type Options struct {
	FPS         int
	DecayBase   float64
	BlankOnExit bool
}

// New creates a render loop for a strip of n pixels reading from target.
func New(n int, opts Options, target *strip.Target, emitter *frame.Emitter) *Loop {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	return &Loop{
		fps:         opts.FPS,
		target:      target,
		smoother:    strip.NewSmoother(n, opts.DecayBase, time.Now()),
		emitter:     emitter,
		blankOnExit: opts.BlankOnExit,
		now:         time.Now,
	}
}

// Run ticks at the configured rate until ctx is cancelled. The smoothing clock
// starts when Run does, so time spent before it is not applied as one step.
func (l *Loop) Run(ctx context.Context) error {
	l.smoother.Reset(l.now())

	interval := time.Second / time.Duration(l.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Int("fps", l.fps).Dur("interval", interval).Msg("Render loop started")

	for {
		select {
		case <-ctx.Done():
			if l.blankOnExit {
				l.emitter.Emit(strip.NewBuffer(len(l.smoother.Displayed())))
			}
			log.Info().Uint64("frames", l.emitter.Emitted()).Msg("Render loop stopping")
			return nil
		case <-ticker.C:
			l.Tick(l.now())
		}
	}
}

// Tick runs one smoothing step at now and emits the result. A panic inside the
// step is logged and swallowed so later ticks still run.
func (l *Loop) Tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			if !l.panicked {
				log.Error().Interface("panic", r).Msg("Render tick panicked")
			}
			l.panicked = true
		}
	}()

	displayed := l.smoother.Tick(now, l.target.Load())
	l.emitter.Emit(displayed)
	l.panicked = false
}

// Displayed returns the current displayed buffer. Only safe to call from the
// goroutine running the loop, or after it has stopped.
func (l *Loop) Displayed() strip.Buffer {
	return l.smoother.Displayed()
}
