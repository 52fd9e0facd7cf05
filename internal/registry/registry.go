// Package registry provides the registration point that implementor
// mappings are published through. It replaces the generated artifacts'
// ambient-global probe (window.register_implementors vs.
// window.pending_implementors) with an explicit, injectable handle: a
// publisher holds a *Registry instead of probing process-wide state.
package registry

import (
	"sync"

	"github.com/traitdex/traitdex/internal/impljs"
)

// Sink is the registration hook. It receives each published mapping as its
// sole argument. A sink must not call back into the Registry.
type Sink func(m *impljs.Mapping)

// Registry is the publish point for implementor mappings. Until a sink is
// installed, published mappings park in a FIFO pending queue; installing
// the sink drains the queue in arrival order.
type Registry struct {
	mu        sync.Mutex
	sink      Sink
	pending   []*impljs.Mapping
	published int
}

func New() *Registry {
	return &Registry{}
}

// Publish delivers a mapping to the installed sink, synchronously and
// exactly once. With no sink installed the mapping is queued instead.
// Publish never retries and never deduplicates: publishing the same mapping
// twice produces two deliveries.
func (r *Registry) Publish(m *impljs.Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink == nil {
		r.pending = append(r.pending, m)
		return
	}
	r.published++
	r.sink(m)
}

// Install sets the sink and drains any pending mappings to it in FIFO
// order before returning. Returns the number of drained mappings.
// Installing a second sink replaces the first.
func (r *Registry) Install(sink Sink) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sink = sink
	drained := len(r.pending)
	for _, m := range r.pending {
		r.published++
		sink(m)
	}
	r.pending = nil
	return drained
}

// Ready reports whether a sink is installed.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink != nil
}

// Pending returns the number of queued mappings awaiting a sink.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Published returns the number of mappings delivered to a sink so far.
func (r *Registry) Published() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}
