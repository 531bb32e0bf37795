package metrics

// MetricsCollector is the read/write surface the web server uses for the
// admin dashboard. Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// RecordTask logs a finished operation.
	RecordTask(task TaskRecord)

	// GetTaskMetrics returns aggregated statistics.
	GetTaskMetrics() TaskMetrics

	// GetRecentTasks returns up to limit records, newest first.
	GetRecentTasks(limit int) []TaskRecord

	// GetSystemStatus returns the overall system health.
	GetSystemStatus() SystemStatus
}
