package shutdown

import "sync"

// SignalCounter counts termination signals and calls onForce once the
// count reaches forceAfter. The first Ctrl+C starts a graceful shutdown;
// the second one exits without waiting.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	forceAfter int
	onForce    func()
}

// NewSignalCounter creates a counter. onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Increment records one signal and returns the new count.
func (s *SignalCounter) Increment() int {
	s.mu.Lock()
	s.count++
	count := s.count
	force := s.forceAfter > 0 && count >= s.forceAfter
	onForce := s.onForce
	s.mu.Unlock()

	if force && onForce != nil {
		onForce()
	}
	return count
}

// Count returns the number of signals seen.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
