package webui

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolbox_backend/core"
	"toolbox_backend/metrics"
)

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// ComponentStatus is the last check result for one dependency.
type ComponentStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// HealthMonitor checks the server's dependencies (database, Redis) on an
// interval and serves the cached result on /health.
//
// Usage:
//
//	monitor := NewHealthMonitor(logger, store, 30*time.Second)
//	monitor.Register("database", database.Ping)
//	go monitor.Start(ctx)
//	router.Get("/health", monitor.HandleHealth)
type HealthMonitor struct {
	mu       sync.RWMutex
	checks   map[string]HealthCheck
	statuses map[string]ComponentStatus
	store    metrics.MetricsCollector
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHealthMonitor creates a monitor. store may be nil; when set its
// degraded flag is folded into the report.
func NewHealthMonitor(logger *zap.Logger, store metrics.MetricsCollector, interval time.Duration) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		checks:   make(map[string]HealthCheck),
		statuses: make(map[string]ComponentStatus),
		store:    store,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger.Named("health"),
	}
}

// Register adds a named check. It runs on the next cycle.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start runs checks immediately and then every interval until ctx is done.
// It blocks.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow runs every registered check once.
func (m *HealthMonitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	for name, check := range checks {
		m.runCheck(ctx, name, check)
	}
}

func (m *HealthMonitor) runCheck(ctx context.Context, name string, check HealthCheck) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := check(checkCtx)
	cancel()

	status := ComponentStatus{Name: name, Healthy: err == nil, LastCheck: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}

	m.mu.Lock()
	prev, hadPrev := m.statuses[name]
	m.statuses[name] = status
	m.mu.Unlock()

	switch {
	case hadPrev && prev.Healthy && !status.Healthy:
		m.logger.Warn("dependency unhealthy", zap.String("component", name), zap.Error(err))
	case hadPrev && !prev.Healthy && status.Healthy:
		m.logger.Info("dependency recovered", zap.String("component", name))
	case !hadPrev && !status.Healthy:
		m.logger.Warn("dependency unhealthy at first check", zap.String("component", name), zap.Error(err))
	}
}

// Statuses returns the cached results sorted by name.
func (m *HealthMonitor) Statuses() []ComponentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ComponentStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every checked dependency passed.
func (m *HealthMonitor) Healthy() bool {
	for _, s := range m.Statuses() {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime,omitempty"`
	Components []ComponentStatus `json:"components"`
}

// HandleHealth serves GET /health: 200 when every dependency is up, 503
// otherwise. Checks run inline when no cycle has completed yet.
func (m *HealthMonitor) HandleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	pending := len(m.statuses) < len(m.checks)
	m.mu.RUnlock()
	if pending {
		m.CheckNow(r.Context())
	}

	resp := HealthResponse{
		Status:     "ok",
		Version:    core.Version,
		Components: m.Statuses(),
	}
	if m.store != nil {
		sys := m.store.GetSystemStatus()
		resp.Uptime = FormatDuration(sys.Uptime)
		if sys.Health == metrics.SystemHealthDegraded {
			resp.Status = metrics.SystemHealthDegraded
		}
	}

	status := http.StatusOK
	if !m.Healthy() {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
