package provider

import (
	"sync"
	"time"
)

// Health is the last observed state of one provider. It is advisory only:
// the status endpoint reads it, the fallback walk never does, because
// upstream failures are usually transient and a provider that failed a
// minute ago still deserves the next attempt.
type Health struct {
	Provider    string    `json:"provider"`
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"lastError,omitempty"`
	LastAttempt time.Time `json:"lastAttempt"`
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
}

// HealthRegistry tracks per-provider health for the status surface.
// Constructed explicitly and injected so tests can reset it.
type HealthRegistry struct {
	mu  sync.Mutex
	now func() time.Time
	byP map[string]Health
}

func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{now: time.Now, byP: make(map[string]Health)}
}

// Report records the outcome of one attempt. A nil err clears LastError.
func (r *HealthRegistry) Report(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.byP[name]
	h.Provider = name
	h.LastAttempt = r.now()
	if err != nil {
		h.Healthy = false
		h.LastError = err.Error()
	} else {
		h.Healthy = true
		h.LastError = ""
		h.LastSuccess = h.LastAttempt
	}
	r.byP[name] = h
}

// Snapshot returns a copy of all known provider states.
func (r *HealthRegistry) Snapshot() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Health, 0, len(r.byP))
	for _, h := range r.byP {
		out = append(out, h)
	}
	return out
}
