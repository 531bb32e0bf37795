// Package metrics keeps in-process counters for the admin dashboard and
// exports Prometheus metrics for variant batches and mirror calls.
package metrics

import "time"

// TaskRecord is one finished toolbox operation.
type TaskRecord struct {
	// ID is the batch ID or mirror request ID
	ID string `json:"id"`

	// Type is TaskTypeVariants or TaskTypeMirror
	Type string `json:"type"`

	ProfileID string `json:"profile_id"`

	// Status is "success" or "error"
	Status string `json:"status"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	// Items is the number of variants produced, or 1 for a mirror image
	Items int `json:"items"`

	// ErrorMsg contains error details if Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// SystemStatus represents the overall system health and status.
type SystemStatus struct {
	// Health is "running" or "degraded"
	Health string `json:"health"`

	Version string `json:"version"`

	// Uptime is the duration since the application started
	Uptime time.Duration `json:"uptime"`

	LastCheck time.Time `json:"last_check"`
}

// TaskMetrics represents aggregated task statistics.
type TaskMetrics struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalSuccess   int64 `json:"total_success"`
	TotalErrors    int64 `json:"total_errors"`

	// ByType contains per-type statistics
	ByType map[string]*TaskTypeMetrics `json:"by_type"`
}

// TaskTypeMetrics represents statistics for a specific task type.
type TaskTypeMetrics struct {
	Count int64 `json:"count"`

	// Items is the total variants (or mirror images) produced
	Items int64 `json:"items"`

	// SuccessRate is the percentage of successful operations (0-100)
	SuccessRate float64 `json:"success_rate"`

	AvgDuration time.Duration `json:"avg_duration"`
}

// Status constants for TaskRecord
const (
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)

// Task type constants
const (
	TaskTypeVariants = "variants"
	TaskTypeMirror   = "mirror"
)
