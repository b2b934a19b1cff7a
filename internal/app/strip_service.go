package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/config"
	"github.com/dokzlo13/huestrip/internal/eventbus"
	"github.com/dokzlo13/huestrip/internal/frame"
	"github.com/dokzlo13/huestrip/internal/hue"
	"github.com/dokzlo13/huestrip/internal/poll"
	"github.com/dokzlo13/huestrip/internal/render"
	"github.com/dokzlo13/huestrip/internal/sink"
	"github.com/dokzlo13/huestrip/internal/strip"
)

// StripService wraps the colour pipeline: bulb polling, the smoothing render
// loop and the frame sinks.
type StripService struct {
	cfg *config.Config

	Source  hue.Source
	Cache   *hue.LightCache
	Bus     *eventbus.Bus
	Target  *strip.Target
	Poller  *poll.Poller
	Render  *render.Loop
	Emitter *frame.Emitter
	Sinks   sink.Sink

	sinkCancel context.CancelFunc
	pollDone   chan struct{}
	renderDone chan struct{}
	sinksDone  chan struct{}
}

// NewStripService creates the pipeline on source, delivering frames to out.
func NewStripService(cfg *config.Config, source hue.Source, out sink.Sink) *StripService {
	pixels := cfg.Strip.Pixels

	// Initial target is black, so the strip fades in from dark
	target := strip.NewTarget(strip.NewBuffer(pixels))

	// Stale after a few missed polls
	staleAfter := 3*cfg.Hue.PollDelay.Duration() + cfg.Hue.Timeout.Duration()
	cache := hue.NewLightCache(staleAfter)

	bus := eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	poller := poll.New(poll.Config{
		LeftLight:    cfg.Hue.LeftLight,
		RightLight:   cfg.Hue.RightLight,
		Pixels:       pixels,
		Delay:        cfg.Hue.PollDelay.Duration(),
		Timeout:      cfg.Hue.Timeout.Duration(),
		RateLimitRPS: cfg.Hue.RateLimitRPS,
	}, source, bulb.NewInterpreter(cfg.Strip.FadeDepth), target, cache, bus)

	emitter := frame.NewEmitter(cfg.Strip.ID, cfg.Strip.Name, out)

	loop := render.New(pixels, render.Options{
		FPS:         cfg.Strip.FPS,
		DecayBase:   cfg.Strip.DecayBase,
		BlankOnExit: cfg.Strip.ShouldBlankOnExit(),
	}, target, emitter)

	return &StripService{
		cfg:     cfg,
		Source:  source,
		Cache:   cache,
		Bus:     bus,
		Target:  target,
		Poller:  poller,
		Render:  loop,
		Emitter: emitter,
		Sinks:   out,
	}
}

// Start runs a first poll so the strip does not start from black when the
// bridge is reachable. A failure is not fatal; polling retries in the background.
func (s *StripService) Start(ctx context.Context) error {
	if err := s.Poller.PollOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("bridge", s.cfg.Hue.Bridge).Msg("Initial poll failed, will keep retrying")
		return nil
	}
	log.Info().Str("bridge", s.cfg.Hue.Bridge).Msg("Connected to Hue bridge")
	return nil
}

// StartBackground starts the poller, the render loop and the sinks.
// Poller and render loop stop with ctx. Sinks outlive it so they can deliver
// the final frame; Stop shuts them down.
func (s *StripService) StartBackground(ctx context.Context) {
	sinkCtx, cancel := context.WithCancel(context.Background())
	s.sinkCancel = cancel

	s.sinksDone = make(chan struct{})
	go func() {
		defer close(s.sinksDone)
		if err := s.Sinks.Run(sinkCtx); err != nil {
			log.Error().Err(err).Str("sink", s.Sinks.Name()).Msg("Sink error")
		}
	}()

	s.pollDone = make(chan struct{})
	go func() {
		defer close(s.pollDone)
		if err := s.Poller.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Poller error")
		}
	}()

	s.renderDone = make(chan struct{})
	go func() {
		defer close(s.renderDone)
		if err := s.Render.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Render loop error")
		}
	}()

	log.Info().
		Str("sinks", s.Sinks.Name()).
		Int("pixels", s.cfg.Strip.Pixels).
		Int("fps", s.cfg.Strip.FPS).
		Msg("Strip pipeline started")
}

// Stop waits for the render loop to emit its last frame, then stops the sinks.
// The caller must have cancelled the context given to StartBackground.
func (s *StripService) Stop(timeout time.Duration) error {
	deadline := time.After(timeout)

	for _, done := range []chan struct{}{s.renderDone, s.pollDone} {
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-deadline:
			return fmt.Errorf("strip pipeline did not stop within %s", timeout)
		}
	}

	if s.sinkCancel != nil {
		s.sinkCancel()
	}
	if s.sinksDone != nil {
		select {
		case <-s.sinksDone:
		case <-deadline:
			return fmt.Errorf("sinks did not stop within %s", timeout)
		}
	}
	return nil
}

// Close releases all resources.
func (s *StripService) Close() {
	if s.sinkCancel != nil {
		s.sinkCancel()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
}
