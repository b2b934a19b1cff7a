// Package poll runs the bulb polling pipeline: fetch both bulbs, derive their
// colours, build the strip gradient and publish it as the new target.
package poll

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/color"
	"github.com/dokzlo13/huestrip/internal/eventbus"
	"github.com/dokzlo13/huestrip/internal/hue"
	"github.com/dokzlo13/huestrip/internal/strip"
)

// Config configures a Poller.
type Config struct {
	LeftLight    int
	RightLight   int
	Pixels       int
	Delay        time.Duration // Wait after each poll completes
	Timeout      time.Duration // Per-fetch timeout, 0 = none
	RateLimitRPS float64
}

// Stats are poll counters for status reporting.
type Stats struct {
	OK          uint64
	Failed      uint64
	LastSuccess time.Time
	LastError   string
}

// Poller fetches bulb state and replaces the strip target. Only one fetch is in
// flight at a time; the next one starts Delay after the previous completes.
type Poller struct {
	cfg         Config
	source      hue.Source
	interpreter *bulb.Interpreter
	target      *strip.Target
	cache       *hue.LightCache
	bus         *eventbus.Bus
	limiter     *rate.Limiter

	ok          atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Int64
	lastError   atomic.Value
}

// New creates a new Poller. cache and bus may be nil.
func New(cfg Config, source hue.Source, interpreter *bulb.Interpreter, target *strip.Target, cache *hue.LightCache, bus *eventbus.Bus) *Poller {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10.0
	}
	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Poller{
		cfg:         cfg,
		source:      source,
		interpreter: interpreter,
		target:      target,
		cache:       cache,
		bus:         bus,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
	}
}

// Run polls until ctx is cancelled. Errors never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Int("left", p.cfg.LeftLight).
		Int("right", p.cfg.RightLight).
		Dur("delay", p.cfg.Delay).
		Msg("Poller started")

	failing := false
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			log.Info().Msg("Poller stopping")
			return nil
		}

		err := p.PollOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			log.Info().Msg("Poller stopping")
			return nil
		case err != nil:
			// Log the first failure loudly, repeats at debug
			ev := log.Debug()
			if !failing {
				ev = log.Warn()
			}
			ev.Err(err).Msg("Poll failed, keeping previous colours")
			failing = true
		case failing:
			log.Info().Msg("Poll recovered")
			failing = false
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Poller stopping")
			return nil
		case <-time.After(p.cfg.Delay):
		}
	}
}

// PollOnce performs a single fetch and, on success, replaces the target.
// On failure the previous target is kept.
func (p *Poller) PollOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panicked: %v", r)
		}
		if err != nil {
			p.recordFailure(err)
		}
	}()

	fetchCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	states, err := p.source.Lights(fetchCtx, p.cfg.LeftLight, p.cfg.RightLight)
	if err != nil {
		return err
	}

	left, ok := states[p.cfg.LeftLight]
	if !ok {
		return fmt.Errorf("%w: %d", hue.ErrLightNotFound, p.cfg.LeftLight)
	}
	right, ok := states[p.cfg.RightLight]
	if !ok {
		return fmt.Errorf("%w: %d", hue.ErrLightNotFound, p.cfg.RightLight)
	}

	leftColor := p.interpreter.Color(left)
	rightColor := p.interpreter.Color(right)

	p.target.Store(strip.Gradient(leftColor, rightColor, p.cfg.Pixels))

	p.observe("left", p.cfg.LeftLight, left, leftColor)
	p.observe("right", p.cfg.RightLight, right, rightColor)

	p.ok.Add(1)
	p.lastSuccess.Store(time.Now().UnixNano())
	return nil
}

func (p *Poller) observe(side string, id int, state bulb.State, rgb color.Color) {
	if p.cache == nil {
		return
	}
	if !p.cache.Set(id, state, rgb) {
		return
	}

	log.Debug().
		Str("side", side).
		Int("light", id).
		Stringer("state", state).
		Str("color", rgb.Hex()).
		Msg("Bulb colour changed")

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Type:  eventbus.EventTypeBulbChanged,
			Light: id,
			Side:  side,
			State: state,
			Color: rgb,
		})
	}
}

func (p *Poller) recordFailure(err error) {
	p.failed.Add(1)
	p.lastError.Store(err.Error())

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypePollFailed,
			Err:  err,
		})
	}
}

// Stats returns a snapshot of the poll counters.
func (p *Poller) Stats() Stats {
	s := Stats{
		OK:     p.ok.Load(),
		Failed: p.failed.Load(),
	}
	if ns := p.lastSuccess.Load(); ns != 0 {
		s.LastSuccess = time.Unix(0, ns)
	}
	if msg, ok := p.lastError.Load().(string); ok {
		s.LastError = msg
	}
	return s
}
