package shutdown

import (
	"sync"
	"testing"
)

func TestSignalCounter(t *testing.T) {
	tests := []struct {
		name       string
		forceAfter int
		signals    int
		wantForced int
	}{
		{"one signal", 2, 1, 0},
		{"second signal forces", 2, 2, 1},
		{"every signal past threshold", 2, 4, 3},
		{"zero threshold never forces", 0, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forced := 0
			c := NewSignalCounter(tt.forceAfter, func() { forced++ })
			for i := 0; i < tt.signals; i++ {
				c.Increment()
			}
			if c.Count() != tt.signals {
				t.Errorf("Count() = %d, want %d", c.Count(), tt.signals)
			}
			if forced != tt.wantForced {
				t.Errorf("forced = %d, want %d", forced, tt.wantForced)
			}
		})
	}
}

func TestSignalCounter_NilCallback(t *testing.T) {
	c := NewSignalCounter(1, nil)
	if got := c.Increment(); got != 1 {
		t.Errorf("Increment() = %d, want 1", got)
	}
}

func TestSignalCounter_Concurrent(t *testing.T) {
	var mu sync.Mutex
	forced := 0
	c := NewSignalCounter(10, func() {
		mu.Lock()
		forced++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment()
		}()
	}
	wg.Wait()

	if c.Count() != 100 {
		t.Errorf("Count() = %d, want 100", c.Count())
	}
	if forced != 91 {
		t.Errorf("forced = %d, want 91", forced)
	}
}
