package webui

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"toolbox_backend/db"
	"toolbox_backend/metrics"
	"toolbox_backend/mirror"
	"toolbox_backend/shutdown"
	"toolbox_backend/variation"
)

// testProfileHeader selects the signed-in profile in fakeAuth.
const testProfileHeader = "X-Test-Profile"

var (
	adminProfileFixture   = db.Profile{ID: "admin-1", Email: "admin@example.com", Nickname: "admin", Role: db.RoleAdmin, IsApproved: true}
	memberProfileFixture  = db.Profile{ID: "member-1", Email: "member@example.com", Nickname: "member", Role: db.RoleMember, IsApproved: true}
	pendingProfileFixture = db.Profile{ID: "pending-1", Email: "pending@example.com", Nickname: "pending", Role: db.RoleMember}
)

// fakeAuth resolves the profile from testProfileHeader.
type fakeAuth struct {
	profiles map[string]db.Profile
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{profiles: map[string]db.Profile{
		adminProfileFixture.ID:   adminProfileFixture,
		memberProfileFixture.ID:  memberProfileFixture,
		pendingProfileFixture.ID: pendingProfileFixture,
	}}
}

func (a *fakeAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := a.profiles[r.Header.Get(testProfileHeader)]
		if !ok {
			WriteError(w, nil, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), p)))
	})
}

func (a *fakeAuth) RequireApproved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, _ := ProfileFromContext(r.Context()); !p.CanUseToolbox() {
			WriteError(w, nil, ErrPendingApproval)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *fakeAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, _ := ProfileFromContext(r.Context()); !p.IsAdmin() {
			WriteError(w, nil, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *fakeAuth) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"route": "login", "client_ip": ClientIP(r)})
	}
}

func (a *fakeAuth) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { WriteJSON(w, http.StatusOK, map[string]string{"route": "logout"}) }
}

func (a *fakeAuth) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { WriteJSON(w, http.StatusCreated, map[string]string{"route": "signup"}) }
}

// fakeGenerator returns count synthetic records.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGenerator) GenerateVariants(ctx context.Context, source []byte, count int, level variation.Level, progress variation.ProgressReporter) ([]variation.ProcessedImageRecord, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := make([]variation.ProcessedImageRecord, count)
	for i := range records {
		records[i] = variation.ProcessedImageRecord{
			Index:         i,
			Label:         "variant",
			MimeType:      "image/jpeg",
			Data:          []byte{byte(i), 0xFF, 0xD8},
			UniqueHash:    string(rune('a'+i)) + "1b2c3",
			UniqueID:      "id",
			Timestamp:     now,
			Seed:          int64(9007199254740993 + i),
			Width:         64,
			Height:        48,
			AppliedStages: []variation.StageName{variation.StageGeometric},
			Fallback:      i == 1,
		}
	}
	return records, nil
}

func (g *fakeGenerator) MaxVariants() int { return 10 }

// fakeMirror answers Transform with resp or err.
type fakeMirror struct {
	enabled bool
	resp    *mirror.Response
	err     error
	credits int
	lastReq mirror.Request
}

func (m *fakeMirror) Enabled() bool { return m.enabled }

func (m *fakeMirror) Transform(ctx context.Context, profileID string, req mirror.Request) (*mirror.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *fakeMirror) Credits(ctx context.Context, profileID string) (int, error) {
	return m.credits, nil
}

// fakeRepo implements ProfileAdmin, HistoryReader and BatchRecorder.
type fakeRepo struct {
	mu       sync.Mutex
	profiles map[string]db.Profile
	batches  []db.BatchRecord
	mirrors  []db.MirrorRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{profiles: map[string]db.Profile{
		adminProfileFixture.ID:   adminProfileFixture,
		memberProfileFixture.ID:  memberProfileFixture,
		pendingProfileFixture.ID: pendingProfileFixture,
	}}
}

func (r *fakeRepo) ListProfiles(ctx context.Context) ([]db.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]db.Profile, 0, len(r.profiles))
	for _, id := range []string{adminProfileFixture.ID, memberProfileFixture.ID, pendingProfileFixture.ID} {
		if p, ok := r.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetApproval(ctx context.Context, id string, approved bool) (db.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return db.Profile{}, db.ErrNotFound
	}
	p.IsApproved = approved
	r.profiles[id] = p
	return p, nil
}

func (r *fakeRepo) RecentBatches(ctx context.Context, profileID string, limit int) ([]db.BatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.BatchRecord
	for i := len(r.batches) - 1; i >= 0 && len(out) < limit; i-- {
		if r.batches[i].ProfileID == profileID {
			out = append(out, r.batches[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) RecentMirrorRequests(ctx context.Context, profileID string, limit int) ([]db.MirrorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.MirrorRecord
	for i := len(r.mirrors) - 1; i >= 0 && len(out) < limit; i-- {
		if r.mirrors[i].ProfileID == profileID {
			out = append(out, r.mirrors[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertBatch(ctx context.Context, rec db.BatchRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, rec)
	return rec.ID, nil
}

// fakeExporter counts batches by status.
type fakeExporter struct {
	mu      sync.Mutex
	batches map[string]int
}

func (e *fakeExporter) ObserveBatch(status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.batches == nil {
		e.batches = map[string]int{}
	}
	e.batches[status]++
}

func (e *fakeExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("toolbox_variant_batches_total 1\n"))
	})
}

// testServer bundles a Server with its fakes.
type testServer struct {
	server    *Server
	generator *fakeGenerator
	mirror    *fakeMirror
	repo      *fakeRepo
	exporter  *fakeExporter
	store     *metrics.MetricsStore
	manager   *shutdown.Manager
}

func newTestServer(t *testing.T, mutate ...func(*ServerConfig)) *testServer {
	t.Helper()

	logger := zaptest.NewLogger(t)
	ts := &testServer{
		generator: &fakeGenerator{},
		mirror:    &fakeMirror{enabled: true, credits: 30},
		repo:      newFakeRepo(),
		exporter:  &fakeExporter{},
		store:     metrics.NewMetricsStore(metrics.DefaultStoreConfig(), time.Now()),
		manager:   shutdown.NewManager(logger),
	}

	config := DefaultServerConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	for _, m := range mutate {
		m(&config)
	}

	server, err := NewServer(config, Dependencies{
		Auth:      newFakeAuth(),
		Generator: ts.generator,
		Mirror:    ts.mirror,
		Profiles:  ts.repo,
		History:   ts.repo,
		Batches:   ts.repo,
		Metrics:   ts.store,
		Exporter:  ts.exporter,
		Tracker:   ts.manager,
	}, logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts.server = server
	return ts
}
