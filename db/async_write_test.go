package db

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriterProcessesWrites(t *testing.T) {
	var mu sync.Mutex
	var received []any

	writer := NewAsyncWriter(func(op WriteOperation) error {
		mu.Lock()
		received = append(received, op.Data)
		mu.Unlock()
		return nil
	})
	writer.Start()

	for _, data := range []string{"first", "second", "third"} {
		if !writer.Write(data) {
			t.Errorf("Write(%q) = false, want true", data)
		}
	}

	if !writer.Stop() {
		t.Fatal("Stop() timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Errorf("received %d operations, want 3", len(received))
	}
	if writer.Processed() != 3 {
		t.Errorf("Processed() = %d, want 3", writer.Processed())
	}
}

func TestAsyncWriterFullBuffer(t *testing.T) {
	release := make(chan struct{})
	writer := NewAsyncWriterWithConfig(func(op WriteOperation) error {
		<-release
		return nil
	}, AsyncWriterConfig{ChannelCapacity: 2, DrainTimeout: 5 * time.Second})
	writer.Start()

	accepted := 0
	for i := 0; i < 10; i++ {
		if writer.Write(i) {
			accepted++
		}
	}
	// One operation may be held by the handler, two more fit in the buffer.
	if accepted < 2 || accepted > 3 {
		t.Errorf("accepted = %d, want 2 or 3", accepted)
	}

	close(release)
	if !writer.Stop() {
		t.Fatal("Stop() timed out")
	}
	if got := writer.Processed(); got != int64(accepted) {
		t.Errorf("Processed() = %d, want %d", got, accepted)
	}
}

func TestAsyncWriterStop(t *testing.T) {
	t.Run("drains buffered writes", func(t *testing.T) {
		var handled atomic.Int64
		writer := NewAsyncWriter(func(op WriteOperation) error {
			time.Sleep(time.Millisecond)
			handled.Add(1)
			return nil
		})
		writer.Start()
		for i := 0; i < 25; i++ {
			writer.Write(i)
		}
		if !writer.Stop() {
			t.Fatal("Stop() timed out")
		}
		if got := handled.Load(); got != 25 {
			t.Errorf("handled = %d, want 25", got)
		}
	})

	t.Run("rejects writes after stop", func(t *testing.T) {
		writer := NewAsyncWriter(func(WriteOperation) error { return nil })
		writer.Start()
		writer.Stop()

		if writer.Write("late") {
			t.Error("Write() after Stop = true, want false")
		}
		if writer.IsStarted() {
			t.Error("IsStarted() after Stop = true")
		}
		if !writer.Stop() {
			t.Error("second Stop() = false")
		}
	})

	t.Run("times out on a stuck handler", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		writer := NewAsyncWriter(func(WriteOperation) error {
			<-release
			return nil
		})
		writer.Start()
		writer.Write("stuck")
		time.Sleep(10 * time.Millisecond)

		if writer.StopWithTimeout(20 * time.Millisecond) {
			t.Error("StopWithTimeout() = true, want false for a stuck handler")
		}
	})

	t.Run("start after stop is a no-op", func(t *testing.T) {
		writer := NewAsyncWriter(func(WriteOperation) error { return nil })
		writer.Stop()
		writer.Start()
		if writer.IsStarted() {
			t.Error("IsStarted() = true after Start on a stopped writer")
		}
	})
}

func TestAsyncWriterErrors(t *testing.T) {
	boom := errors.New("boom")
	var reported atomic.Int64

	writer := NewAsyncWriterWithConfig(func(op WriteOperation) error {
		if op.Data.(int)%2 == 0 {
			return boom
		}
		return nil
	}, AsyncWriterConfig{
		OnError: func(op WriteOperation, err error) {
			if errors.Is(err, boom) {
				reported.Add(1)
			}
		},
	})
	writer.Start()
	for i := 0; i < 6; i++ {
		writer.Write(i)
	}
	writer.Stop()

	if writer.Failed() != 3 || writer.Processed() != 3 {
		t.Errorf("Failed() = %d, Processed() = %d, want 3 and 3", writer.Failed(), writer.Processed())
	}
	if reported.Load() != 3 {
		t.Errorf("OnError called %d times, want 3", reported.Load())
	}
}

func TestAsyncWriterDefaults(t *testing.T) {
	writer := NewAsyncWriterWithConfig(func(WriteOperation) error { return nil }, AsyncWriterConfig{})
	if cap(writer.writeChan) != DefaultChannelCapacity {
		t.Errorf("capacity = %d, want %d", cap(writer.writeChan), DefaultChannelCapacity)
	}
	if writer.config.DrainTimeout != DefaultDrainTimeout {
		t.Errorf("DrainTimeout = %v, want %v", writer.config.DrainTimeout, DefaultDrainTimeout)
	}
	if writer.IsStarted() {
		t.Error("IsStarted() before Start = true")
	}
}
