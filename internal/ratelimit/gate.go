// Package ratelimit tracks upstream request budgets per provider credential.
//
// Providers publish heterogeneous limits (fixed windows, vague "requests per
// minute"). A sliding window plus a minimum inter-request interval satisfies
// both conservatively without provider-side introspection, and an explicit
// cooldown deadline honors hard throttle signals relayed by the adapters.
package ratelimit

import (
	"sync"
	"time"
)

// Limits is the configured budget for one provider credential.
type Limits struct {
	Window       time.Duration // sliding window length
	MaxPerWindow int           // max recorded requests inside the window
	MinInterval  time.Duration // minimum spacing between consecutive requests
}

// Occupancy is a read-only view for the status endpoint.
type Occupancy struct {
	Provider      string    `json:"provider"`
	Used          int       `json:"used"`
	Max           int       `json:"max"`
	CooldownUntil time.Time `json:"cooldownUntil,omitzero"`
}

// Gate enforces Limits per provider name. State is process-local; when the
// service runs as many replicas the gate under-counts aggregate volume and
// the upstream 429 path (Cooldown) becomes the backstop.
type Gate struct {
	now func() time.Time

	mu       sync.Mutex
	limits   map[string]Limits
	stamps   map[string][]time.Time
	cooldown map[string]time.Time
}

// New builds a Gate. Providers absent from limits are never throttled
// locally but still honor explicit cooldowns.
func New(limits map[string]Limits) *Gate {
	return NewWithClock(limits, time.Now)
}

// NewWithClock injects the clock, for tests.
func NewWithClock(limits map[string]Limits, now func() time.Time) *Gate {
	if limits == nil {
		limits = map[string]Limits{}
	}
	return &Gate{
		now:      now,
		limits:   limits,
		stamps:   make(map[string][]time.Time),
		cooldown: make(map[string]time.Time),
	}
}

// Allow reports whether a request to name may proceed now. When denied,
// retryAfter is how long until the next attempt could succeed.
func (g *Gate) Allow(name string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	// Hard cooldown overrides window math until it expires.
	if until, ok := g.cooldown[name]; ok {
		if now.Before(until) {
			return false, until.Sub(now)
		}
		delete(g.cooldown, name)
	}

	lim, ok := g.limits[name]
	if !ok {
		return true, 0
	}

	stamps := g.expireLocked(name, now, lim)

	if lim.MaxPerWindow > 0 && len(stamps) >= lim.MaxPerWindow {
		// Wait until the oldest stamp leaves the window.
		return false, stamps[0].Add(lim.Window).Sub(now)
	}
	if lim.MinInterval > 0 && len(stamps) > 0 {
		if gap := now.Sub(stamps[len(stamps)-1]); gap < lim.MinInterval {
			return false, lim.MinInterval - gap
		}
	}
	return true, 0
}

// Record appends the current timestamp for name. Call it once per attempt,
// after Allow granted it.
func (g *Gate) Record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if lim, ok := g.limits[name]; ok {
		g.stamps[name] = append(g.expireLocked(name, now, lim), now)
	} else {
		g.stamps[name] = append(g.stamps[name], now)
	}
}

// Cooldown denies all requests to name until the deadline. Invoked by an
// adapter when the provider answers with an explicit rate-limit signal.
func (g *Gate) Cooldown(name string, until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.cooldown[name]; ok && cur.After(until) {
		return // never shorten an existing cooldown
	}
	g.cooldown[name] = until
}

// Occupancy reports the current window usage for name.
func (g *Gate) Occupancy(name string) Occupancy {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	occ := Occupancy{Provider: name}
	lim, hasLim := g.limits[name]
	if hasLim {
		occ.Max = lim.MaxPerWindow
		occ.Used = len(g.expireLocked(name, now, lim))
	} else {
		occ.Used = len(g.stamps[name])
	}
	if until, ok := g.cooldown[name]; ok && now.Before(until) {
		occ.CooldownUntil = until
	}
	return occ
}

// expireLocked drops timestamps older than the window and stores the
// trimmed slice. Caller must hold g.mu.
func (g *Gate) expireLocked(name string, now time.Time, lim Limits) []time.Time {
	stamps := g.stamps[name]
	if lim.Window <= 0 {
		return stamps
	}
	cutoff := now.Add(-lim.Window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		stamps = append([]time.Time(nil), stamps[i:]...)
		g.stamps[name] = stamps
	}
	return stamps
}
