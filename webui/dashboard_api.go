package webui

import (
	"net/http"
	"time"

	"toolbox_backend/core"
	"toolbox_backend/db"
	"toolbox_backend/metrics"
)

// List limits for the dashboard endpoints.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// statusJSON is the system block of GET /api/admin/stats.
type statusJSON struct {
	Health           string    `json:"health"`
	Version          string    `json:"version"`
	GitCommit        string    `json:"git_commit,omitempty"`
	BuildTime        string    `json:"build_time,omitempty"`
	Uptime           string    `json:"uptime"`
	UptimeSecs       float64   `json:"uptime_secs"`
	LastCheck        time.Time `json:"last_check"`
	MirrorEnabled    bool      `json:"mirror_enabled"`
	ActiveOperations int64     `json:"active_operations"`
}

// taskMetricsJSON is the aggregate block of GET /api/admin/stats.
type taskMetricsJSON struct {
	TotalProcessed int64                               `json:"total_processed"`
	TotalSuccess   int64                               `json:"total_success"`
	TotalErrors    int64                               `json:"total_errors"`
	SuccessRate    float64                             `json:"success_rate"`
	ByType         map[string]*metrics.TaskTypeMetrics `json:"by_type"`
}

// statsResponse is the GET /api/admin/stats body.
type statsResponse struct {
	Status  statusJSON           `json:"status"`
	Metrics taskMetricsJSON      `json:"metrics"`
	Tasks   []metrics.TaskRecord `json:"tasks"`
}

// activeCounter is implemented by *shutdown.Manager.
type activeCounter interface {
	ActiveOperations() int64
}

// handleStats serves GET /api/admin/stats?limit=N: system status, task
// aggregates and the most recent tasks.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Status: statusJSON{
			Health:        metrics.SystemHealthRunning,
			Version:       core.Version,
			GitCommit:     core.GitCommit,
			BuildTime:     core.BuildTime,
			LastCheck:     time.Now(),
			MirrorEnabled: s.deps.Mirror.Enabled(),
		},
		Metrics: taskMetricsJSON{ByType: map[string]*metrics.TaskTypeMetrics{}},
		Tasks:   []metrics.TaskRecord{},
	}
	if counter, ok := s.deps.Tracker.(activeCounter); ok {
		resp.Status.ActiveOperations = counter.ActiveOperations()
	}

	if store := s.deps.Metrics; store != nil {
		sys := store.GetSystemStatus()
		resp.Status.Health = sys.Health
		resp.Status.Uptime = FormatDuration(sys.Uptime)
		resp.Status.UptimeSecs = sys.Uptime.Seconds()
		resp.Status.LastCheck = sys.LastCheck

		tm := store.GetTaskMetrics()
		resp.Metrics = taskMetricsJSON{
			TotalProcessed: tm.TotalProcessed,
			TotalSuccess:   tm.TotalSuccess,
			TotalErrors:    tm.TotalErrors,
			ByType:         tm.ByType,
		}
		if tm.TotalProcessed > 0 {
			resp.Metrics.SuccessRate = float64(tm.TotalSuccess) / float64(tm.TotalProcessed) * 100
		}
		resp.Tasks = store.GetRecentTasks(queryLimit(r, defaultListLimit, maxListLimit))
	}

	WriteJSON(w, http.StatusOK, resp)
}

// batchJSON is one variant batch in GET /api/history.
type batchJSON struct {
	ID            string    `json:"id"`
	Level         int       `json:"level"`
	VariantCount  int       `json:"variant_count"`
	Hashes        []string  `json:"hashes"`
	FallbackCount int       `json:"fallback_count"`
	Duration      string    `json:"duration"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// mirrorJSON is one mirror call in GET /api/history.
type mirrorJSON struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Level     int       `json:"level"`
	Duration  string    `json:"duration"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// historyResponse is the GET /api/history body.
type historyResponse struct {
	Batches        []batchJSON  `json:"batches"`
	MirrorRequests []mirrorJSON `json:"mirror_requests"`
}

// handleHistory serves GET /api/history?limit=N with the caller's own
// batches and mirror calls, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	profile, err := currentProfile(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	resp := historyResponse{Batches: []batchJSON{}, MirrorRequests: []mirrorJSON{}}
	if s.deps.History == nil {
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	limit := queryLimit(r, defaultListLimit, maxListLimit)
	batches, err := s.deps.History.RecentBatches(r.Context(), profile.ID, limit)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	mirrors, err := s.deps.History.RecentMirrorRequests(r.Context(), profile.ID, limit)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	for _, b := range batches {
		resp.Batches = append(resp.Batches, toBatchJSON(b))
	}
	for _, m := range mirrors {
		resp.MirrorRequests = append(resp.MirrorRequests, mirrorJSON{
			ID:        m.ID,
			Provider:  m.Provider,
			Level:     m.Level,
			Duration:  FormatMillis(m.DurationMS),
			Status:    m.Status,
			Error:     m.ErrorMessage,
			CreatedAt: m.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

func toBatchJSON(b db.BatchRecord) batchJSON {
	hashes := b.Hashes
	if hashes == nil {
		hashes = []string{}
	}
	return batchJSON{
		ID:            b.ID,
		Level:         b.Level,
		VariantCount:  b.VariantCount,
		Hashes:        hashes,
		FallbackCount: b.FallbackCount,
		Duration:      FormatMillis(b.DurationMS),
		Status:        b.Status,
		Error:         b.ErrorMessage,
		CreatedAt:     b.CreatedAt,
	}
}
