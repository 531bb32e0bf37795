package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"toolbox_backend/core"
)

// Shutdown priorities for the toolbox components. Lower runs first: stop
// taking requests, then flush audit rows, then close storage.
const (
	PriorityHTTPServer  = 10
	PriorityScheduler   = 20
	PriorityAsyncWriter = 30
	PrioritySessions    = 35
	PriorityDatabase    = 40
	PriorityFiles       = 50
	PriorityLogger      = 90
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
}

// Registry runs registered ShutdownFuncs once, in priority order. Equal
// priorities keep registration order.
type Registry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registrations after Shutdown are ignored.
func (r *Registry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, shutdownEntry{name: name, fn: fn, priority: priority})
}

func (r *Registry) sorted() []shutdownEntry {
	sorted := make([]shutdownEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	return sorted
}

// Shutdown runs every entry and returns their errors, each prefixed with
// the entry name. A failing entry does not stop later ones. Only the first
// call does anything.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		if err := entry.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		}
	}
	return errs
}

// Names returns entry names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.sorted()
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of entries.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
