package hue

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/color"
)

// CachedLight holds the last successfully polled state of a light.
type CachedLight struct {
	State     bulb.State
	Color     color.Color
	FetchedAt time.Time
}

// LightCache keeps the last known state per light.
// It does NOT fetch from the bridge - the poller feeds it.
type LightCache struct {
	mu     sync.RWMutex
	lights map[int]*CachedLight
	ttl    time.Duration
	now    func() time.Time
}

// NewLightCache creates a new light cache.
// Parameters:
//   - ttl: age after which an entry is considered stale (0 = use default 5 seconds)
func NewLightCache(ttl time.Duration) *LightCache {
	if ttl == 0 {
		ttl = 5 * time.Second
	}

	log.Debug().Dur("ttl", ttl).Msg("Light cache initialized")

	return &LightCache{
		lights: make(map[int]*CachedLight),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the cached entry for a light, stale or not.
func (c *LightCache) Get(id int) (CachedLight, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.lights[id]
	if !ok {
		return CachedLight{}, false
	}
	return *cached, true
}

// Set stores a light state and the colour derived from it.
// Returns true if the colour differs from the previous entry.
func (c *LightCache) Set(id int, state bulb.State, rgb color.Color) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.lights[id]
	c.lights[id] = &CachedLight{
		State:     state,
		Color:     rgb,
		FetchedAt: c.now(),
	}
	return !existed || prev.Color != rgb
}

// IsStale returns true if the entry is older than TTL or doesn't exist.
func (c *LightCache) IsStale(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.lights[id]
	if !ok {
		return true
	}
	return c.now().Sub(cached.FetchedAt) > c.ttl
}

// Snapshot returns a copy of all entries.
func (c *LightCache) Snapshot() map[int]CachedLight {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[int]CachedLight, len(c.lights))
	for id, cached := range c.lights {
		out[id] = *cached
	}
	return out
}

// Clear removes all entries from the cache.
func (c *LightCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lights = make(map[int]*CachedLight)
}
