package metrics

import (
	"sync"
	"time"
)

// healthWindow is how many recent tasks GetSystemStatus inspects. When at
// least half of a full window failed the system reports degraded.
const healthWindow = 10

const defaultTaskCapacity = 100

// MetricsStore is an in-memory store of recent toolbox operations: a
// fixed-size ring of TaskRecords plus running totals per task type.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordTask(task)
//	metrics := store.GetTaskMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	ring    []TaskRecord
	taskCap int
	next    int // slot the next record overwrites
	filled  int

	totals TaskMetrics
	byType map[string]*typeTotals

	startTime time.Time
	version   string
	now       func() time.Time
}

type typeTotals struct {
	count    int64
	ok       int64
	items    int64
	duration time.Duration
}

// StoreConfig configures the MetricsStore behavior.
type StoreConfig struct {
	// TaskHistoryCapacity is how many finished tasks the ring keeps
	TaskHistoryCapacity int
	Version             string
}

// DefaultStoreConfig keeps the last 100 tasks.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: defaultTaskCapacity,
		Version:             "0.0.0",
	}
}

// NewMetricsStore creates a store. startTime is used to calculate uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = defaultTaskCapacity
	}
	return &MetricsStore{
		ring:      make([]TaskRecord, capacity),
		taskCap:   capacity,
		byType:    make(map[string]*typeTotals),
		startTime: startTime,
		version:   config.Version,
		now:       time.Now,
	}
}

// RecordTask implements MetricsCollector.
func (s *MetricsStore) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = task
	s.next = (s.next + 1) % s.taskCap
	s.filled = min(s.filled+1, s.taskCap)

	t := s.byType[task.Type]
	if t == nil {
		t = &typeTotals{}
		s.byType[task.Type] = t
	}
	t.count++
	t.items += int64(task.Items)
	t.duration += task.Duration

	s.totals.TotalProcessed++
	switch task.Status {
	case TaskStatusSuccess:
		s.totals.TotalSuccess++
		t.ok++
	case TaskStatusError:
		s.totals.TotalErrors++
	}
}

// GetTaskMetrics implements MetricsCollector.
func (s *MetricsStore) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.totals
	out.ByType = make(map[string]*TaskTypeMetrics, len(s.byType))
	for name, t := range s.byType {
		m := &TaskTypeMetrics{Count: t.count, Items: t.items}
		if t.count > 0 {
			m.SuccessRate = float64(t.ok) / float64(t.count) * 100
			m.AvgDuration = t.duration / time.Duration(t.count)
		}
		out.ByType[name] = m
	}
	return out
}

// GetRecentTasks implements MetricsCollector. Records come back newest
// first; a limit above the stored count returns everything.
func (s *MetricsStore) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newest(limit)
}

func (s *MetricsStore) newest(limit int) []TaskRecord {
	limit = min(limit, s.filled)
	if limit <= 0 {
		return []TaskRecord{}
	}
	out := make([]TaskRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, s.ring[(s.next-i+s.taskCap)%s.taskCap])
	}
	return out
}

// GetSystemStatus implements MetricsCollector.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	return SystemStatus{
		Health:    s.health(),
		Version:   s.version,
		Uptime:    now.Sub(s.startTime),
		LastCheck: now,
	}
}

// health reports degraded when half or more of a full window failed.
func (s *MetricsStore) health() string {
	window := s.newest(healthWindow)
	if len(window) < healthWindow {
		return SystemHealthRunning
	}
	failed := 0
	for _, task := range window {
		if task.Status == TaskStatusError {
			failed++
		}
	}
	if failed*2 >= healthWindow {
		return SystemHealthDegraded
	}
	return SystemHealthRunning
}

var _ MetricsCollector = (*MetricsStore)(nil)
