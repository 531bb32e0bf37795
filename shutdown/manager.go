// Package shutdown coordinates a graceful stop of the toolbox server:
// stop accepting requests, let running batches and mirror calls finish,
// flush queued audit rows, then close the database and logger.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"toolbox_backend/core"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 60 * time.Second

// Manager listens for SIGINT/SIGTERM, cancels its context on the first
// signal and exits the process on the second.
//
// Usage:
//
//	manager := shutdown.NewManager(logger)
//	manager.Register("http-server", shutdown.PriorityHTTPServer, server.Shutdown)
//	manager.Start()
//	<-manager.Context().Done()
//	manager.Shutdown()
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration
	exit    func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter

	sigChan  chan os.Signal
	stopOnce sync.Once
	stopped  chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the overall shutdown timeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		if exit != nil {
			m.exit = exit
		}
	}
}

// NewManager creates a Manager. A nil logger is replaced with a no-op one.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("received second signal, exiting without waiting")
		m.exit(core.ExitCodeSIGINT)
	})
	return m
}

// Context is cancelled on the first signal or by Cancel.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Cancel starts shutdown without a signal, as the service runner does
// when the OS asks it to stop.
func (m *Manager) Cancel() {
	m.cancel()
}

// Register adds a cleanup function. See the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start begins listening for signals. Calling it twice does nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go m.watchSignals()
}

func (m *Manager) watchSignals() {
	for {
		select {
		case sig := <-m.sigChan:
			if m.signals.Increment() == 1 {
				m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
				m.cancel()
			}
		case <-m.stopped:
			return
		}
	}
}

func (m *Manager) stopSignals() {
	m.stopOnce.Do(func() {
		signal.Stop(m.sigChan)
		close(m.stopped)
	})
}

// Shutdown rejects new operations, waits for running ones, then runs the
// registered cleanup functions in priority order. Later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	defer m.stopSignals()
	m.cancel()

	start := time.Now()
	m.logger.Info("shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Int64("active_operations", m.tracker.ActiveCount()),
		zap.Strings("handlers", m.registry.Names()))

	m.tracker.Close()
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("in-flight operations did not finish",
			zap.Duration("waited", time.Since(start)),
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("shutdown handler failed", zap.Error(err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// Track runs fn as an in-flight operation. It returns ErrShuttingDown once
// Shutdown has started, and ctx's error if ctx is already done.
func (m *Manager) Track(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected during shutdown", zap.String("operation", name))
		return ErrShuttingDown
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ActiveOperations returns the number of running Track calls.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether Shutdown has started.
func (m *Manager) IsShuttingDown() bool {
	return m.tracker.IsClosed()
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
