package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"toolbox_backend/metrics"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode /health body: %v", err)
	}
	return resp
}

func TestHealthMonitorAllHealthy(t *testing.T) {
	m := NewHealthMonitor(zaptest.NewLogger(t), nil, time.Minute)
	m.Register("database", func(context.Context) error { return nil })
	m.Register("redis", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	m.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeHealth(t, rec)
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if len(resp.Components) != 2 || resp.Components[0].Name != "database" || resp.Components[1].Name != "redis" {
		t.Errorf("Components = %+v, want database then redis", resp.Components)
	}
}

func TestHealthMonitorUnhealthyDependency(t *testing.T) {
	m := NewHealthMonitor(zaptest.NewLogger(t), nil, time.Minute)
	m.Register("database", func(context.Context) error { return errors.New("disk I/O error") })

	rec := httptest.NewRecorder()
	m.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decodeHealth(t, rec)
	if resp.Status != "unavailable" || resp.Components[0].Error != "disk I/O error" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthMonitorReportsDegradedStore(t *testing.T) {
	store := metrics.NewMetricsStore(metrics.DefaultStoreConfig(), time.Now())
	for i := 0; i < 10; i++ {
		status := metrics.TaskStatusSuccess
		if i%2 == 0 {
			status = metrics.TaskStatusError
		}
		store.RecordTask(metrics.TaskRecord{Type: metrics.TaskTypeMirror, Status: status})
	}

	m := NewHealthMonitor(zaptest.NewLogger(t), store, time.Minute)
	rec := httptest.NewRecorder()
	m.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp := decodeHealth(t, rec); resp.Status != metrics.SystemHealthDegraded {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
}

func TestHealthMonitorRecovers(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	m := NewHealthMonitor(zaptest.NewLogger(t), nil, time.Minute)
	m.Register("redis", func(context.Context) error {
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	m.CheckNow(context.Background())
	if m.Healthy() {
		t.Fatal("Healthy() = true with a failing check")
	}
	failing.Store(false)
	m.CheckNow(context.Background())
	if !m.Healthy() {
		t.Error("Healthy() = false after recovery")
	}
}

func TestHealthMonitorStartStops(t *testing.T) {
	var calls atomic.Int32
	m := NewHealthMonitor(zaptest.NewLogger(t), nil, 5*time.Millisecond)
	m.Register("database", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("health checks did not repeat")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
