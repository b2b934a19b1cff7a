package strip

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDecayBase is the per-millisecond retention of the displayed colour.
// 0.995 gives a half-life of roughly 140ms.
const DefaultDecayBase = 0.995

// Smoother is an exponential moving average of the displayed buffer toward a
// moving target, evaluated against wall-clock time so it is independent of the
// tick rate.
type Smoother struct {
	decayBase float64
	displayed Buffer
	last      time.Time

	mismatchLogged bool
}

// NewSmoother creates a smoother with n black pixels and its clock set to start.
func NewSmoother(n int, decayBase float64, start time.Time) *Smoother {
	if decayBase <= 0 || decayBase >= 1 {
		decayBase = DefaultDecayBase
	}
	return &Smoother{
		decayBase: decayBase,
		displayed: NewBuffer(n),
		last:      start,
	}
}

// Weight returns the retention factor for an elapsed duration.
func (s *Smoother) Weight(elapsed time.Duration) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	return math.Pow(s.decayBase, ms)
}

// Tick decays the displayed buffer toward target as of now and returns it.
// The returned buffer is owned by the smoother and is mutated by later ticks.
// A target whose length differs from the strip is skipped.
func (s *Smoother) Tick(now time.Time, target Buffer) Buffer {
	w := s.Weight(now.Sub(s.last))
	s.last = now

	if len(target) != len(s.displayed) {
		if !s.mismatchLogged {
			log.Warn().
				Int("target", len(target)).
				Int("displayed", len(s.displayed)).
				Msg("Target size does not match strip, holding colours")
			s.mismatchLogged = true
		}
		return s.displayed
	}
	s.mismatchLogged = false

	for i := range s.displayed {
		d, t := &s.displayed[i], target[i]
		d.R = w*d.R + (1-w)*t.R
		d.G = w*d.G + (1-w)*t.G
		d.B = w*d.B + (1-w)*t.B
	}

	return s.displayed
}

// Displayed returns the current displayed buffer without advancing the clock.
func (s *Smoother) Displayed() Buffer {
	return s.displayed
}

// Reset moves the clock to now without changing the displayed colours, so the
// next tick only covers time elapsed after now.
func (s *Smoother) Reset(now time.Time) {
	s.last = now
}

// Last returns the time of the last evaluation.
func (s *Smoother) Last() time.Time {
	return s.last
}
