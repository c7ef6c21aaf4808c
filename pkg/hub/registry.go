package hub

import "sync"

// Registry hands out one hub per scan channel, creating and starting
// hubs on first use. Probes and dashboards agree on the scan channel
// name, so a dashboard can attach before its probe starts streaming.
type Registry struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]*Hub)}
}

// Get returns the hub for a scan channel, starting it if needed.
func (r *Registry) Get(scanID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[scanID]
	if !ok {
		h = New(scanID)
		go h.Run()
		r.hubs[scanID] = h
	}
	return h
}

// ClientCount sums connected dashboards across all channels.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, h := range r.hubs {
		total += h.ClientCount()
	}
	return total
}
