package db

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChannelCapacity is the default buffer size for queued audit rows.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout bounds how long Stop waits for queued rows.
const DefaultDrainTimeout = 30 * time.Second

// WriteOperation is one queued write.
type WriteOperation struct {
	Data     any
	QueuedAt time.Time
}

// WriteHandler processes one queued write.
type WriteHandler func(op WriteOperation) error

// AsyncWriter runs writes on a background goroutine so request handlers
// never wait on SQLite for audit rows. Write never blocks; a full buffer is
// reported to the caller, which falls back to a synchronous write.
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	config    AsyncWriterConfig
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	processed atomic.Int64
	failed    atomic.Int64
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	ChannelCapacity int
	DrainTimeout    time.Duration
	// OnError is called for each handler error. Optional.
	OnError func(op WriteOperation, err error)
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// NewAsyncWriter creates a writer with the default configuration.
func NewAsyncWriter(handler WriteHandler) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig creates a writer with a custom configuration.
func NewAsyncWriterWithConfig(handler WriteHandler, config AsyncWriterConfig) *AsyncWriter {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		config:    config,
		done:      make(chan struct{}),
	}
}

// Start launches the background goroutine. Calling it again, or after
// Stop, does nothing.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.run()
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.writeChan:
			w.handle(op)
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain processes whatever is buffered at shutdown.
func (w *AsyncWriter) drain() {
	for {
		select {
		case op := <-w.writeChan:
			w.handle(op)
		default:
			return
		}
	}
}

func (w *AsyncWriter) handle(op WriteOperation) {
	if err := w.handler(op); err != nil {
		w.failed.Add(1)
		if w.config.OnError != nil {
			w.config.OnError(op, err)
		}
		return
	}
	w.processed.Add(1)
}

// Write queues data and reports whether it was accepted. It returns false
// when the buffer is full or the writer has stopped.
func (w *AsyncWriter) Write(data any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}

	select {
	case w.writeChan <- WriteOperation{Data: data, QueuedAt: time.Now()}:
		return true
	default:
		return false
	}
}

// Pending returns the number of buffered operations.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// Processed returns the number of operations the handler completed.
func (w *AsyncWriter) Processed() int64 {
	return w.processed.Load()
}

// Failed returns the number of operations the handler rejected.
func (w *AsyncWriter) Failed() int64 {
	return w.failed.Load()
}

// IsStarted reports whether the writer is accepting and processing writes.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.stopped
}

// Stop stops accepting writes and waits up to DrainTimeout for buffered
// operations to be processed. It returns false on timeout. Safe to call
// more than once.
func (w *AsyncWriter) Stop() bool {
	return w.StopWithTimeout(w.config.DrainTimeout)
}

// StopWithTimeout is Stop with an explicit drain timeout.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.done) })

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		return false
	}
}
