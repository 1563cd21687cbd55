package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/casaline/edge/internal/clock"
)

// Defaults are the per-breaker settings a Registry applies when creating
// breakers on demand.
type Defaults struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Registry owns the breakers of an application, keyed by name. It replaces
// hidden module-level breaker state: construct one in main and inject it
// wherever breakers are needed, so tests stay independent.
type Registry struct {
	clk      clock.Clock
	defaults Defaults

	mu sync.Mutex
	m  map[string]*Breaker
}

func NewRegistry(clk clock.Clock, defaults Defaults) *Registry {
	return &Registry{
		clk:      clk,
		defaults: defaults,
		m:        make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it with the registry defaults
// on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.m[name]; ok {
		return b
	}
	b := New(Options{
		Name:             name,
		FailureThreshold: r.defaults.FailureThreshold,
		ResetTimeout:     r.defaults.ResetTimeout,
	}, r.clk)
	r.m[name] = b
	return b
}

// Stats returns a snapshot of every registered breaker, ordered by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.m))
	for _, b := range r.m {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
