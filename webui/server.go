// Package webui is the HTTP surface of the toolbox: session auth routes,
// the variant and mirror endpoints, admin approval, health and metrics.
//
// The auth subpackage implements AuthProvider; it imports webui for the
// session store, rate limiter and error mapping, so the server only sees
// the interface.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"toolbox_backend/core"
	"toolbox_backend/db"
	"toolbox_backend/metrics"
	"toolbox_backend/mirror"
	"toolbox_backend/variation"
)

// AuthProvider supplies the session middleware and the credential
// handlers. *auth.Handler implements it.
type AuthProvider interface {
	// Authenticate resolves the session cookie and attaches the profile,
	// or answers 401.
	Authenticate(next http.Handler) http.Handler
	// RequireApproved answers 403 for members still pending approval.
	RequireApproved(next http.Handler) http.Handler
	// RequireAdmin answers 403 for non-admins.
	RequireAdmin(next http.Handler) http.Handler

	LoginHandler() http.HandlerFunc
	LogoutHandler() http.HandlerFunc
	SignupHandler() http.HandlerFunc
}

// VariantGenerator produces variant batches. *variation.Generator
// implements it.
type VariantGenerator interface {
	GenerateVariants(ctx context.Context, source []byte, count int, level variation.Level, progress variation.ProgressReporter) ([]variation.ProcessedImageRecord, error)
	MaxVariants() int
}

// MirrorService is the credit-charging remote transform. *mirror.Service
// implements it.
type MirrorService interface {
	Enabled() bool
	Transform(ctx context.Context, profileID string, req mirror.Request) (*mirror.Response, error)
	Credits(ctx context.Context, profileID string) (int, error)
}

// ProfileAdmin lists profiles and toggles approval. *db.Repository
// implements it.
type ProfileAdmin interface {
	ListProfiles(ctx context.Context) ([]db.Profile, error)
	SetApproval(ctx context.Context, id string, approved bool) (db.Profile, error)
}

// HistoryReader reads the audit tables. *db.Repository implements it.
type HistoryReader interface {
	RecentBatches(ctx context.Context, profileID string, limit int) ([]db.BatchRecord, error)
	RecentMirrorRequests(ctx context.Context, profileID string, limit int) ([]db.MirrorRecord, error)
}

// BatchRecorder stores one audit row per variant batch. *db.Repository
// implements it.
type BatchRecorder interface {
	InsertBatch(ctx context.Context, rec db.BatchRecord) (string, error)
}

// MetricsExporter counts batches and serves /metrics. *metrics.Exporter
// implements it.
type MetricsExporter interface {
	ObserveBatch(status string)
	Handler() http.Handler
}

// OperationTracker runs fn as a tracked in-flight operation so shutdown
// waits for it. *shutdown.Manager implements it.
type OperationTracker interface {
	Track(ctx context.Context, name string, fn func(context.Context) error) error
}

// Dependencies are the collaborators the server routes to. Auth,
// Generator, Mirror and Profiles are required.
type Dependencies struct {
	Auth      AuthProvider
	Generator VariantGenerator
	Mirror    MirrorService
	Profiles  ProfileAdmin
	History   HistoryReader
	Batches   BatchRecorder
	Metrics   metrics.MetricsCollector
	Exporter  MetricsExporter
	Health    *HealthMonitor
	Tracker   OperationTracker
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxUploadBytes bounds request bodies on the image endpoints
	MaxUploadBytes int64

	// MaxConcurrentBatches bounds variant batches running at once
	MaxConcurrentBatches int

	// DefaultVariantCount is used when a request omits count
	DefaultVariantCount int

	// LogSkipPaths are not request-logged
	LogSkipPaths []string

	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP set the client
	// address used for logging and rate limits
	TrustProxyHeaders bool
}

// DefaultServerConfig returns defaults matching core's.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                 core.DefaultHTTPHost,
		Port:                 core.DefaultHTTPPort,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         5 * time.Minute,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      30 * time.Second,
		MaxUploadBytes:       core.DefaultMaxUploadMB << 20,
		MaxConcurrentBatches: core.DefaultMaxConcurrentBatches,
		DefaultVariantCount:  core.DefaultVariantCount,
		LogSkipPaths:         []string{"/health", "/metrics"},
	}
}

// ServerConfigFromCore maps the loaded configuration onto ServerConfig.
func ServerConfigFromCore(cfg *core.Config) ServerConfig {
	sc := DefaultServerConfig()
	sc.Host = cfg.HTTPHost
	sc.Port = cfg.HTTPPort
	sc.MaxUploadBytes = cfg.MaxUploadBytes
	sc.MaxConcurrentBatches = cfg.MaxConcurrentBatches
	sc.DefaultVariantCount = cfg.DefaultVariantCount
	sc.TrustProxyHeaders = cfg.TrustProxyHeaders
	if cfg.MirrorTimeout > 0 && cfg.MirrorTimeout+30*time.Second > sc.WriteTimeout {
		sc.WriteTimeout = cfg.MirrorTimeout + 30*time.Second
	}
	return sc
}

// Server is the toolbox HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     ServerConfig
	deps       Dependencies
	logger     *zap.Logger
	loggingMw  *LoggingMiddleware
	batchSem   *semaphore.Weighted
}

// NewServer wires the routes and middleware.
func NewServer(config ServerConfig, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case deps.Auth == nil:
		return nil, errors.New("webui: auth provider is required")
	case deps.Generator == nil:
		return nil, errors.New("webui: variant generator is required")
	case deps.Mirror == nil:
		return nil, errors.New("webui: mirror service is required")
	case deps.Profiles == nil:
		return nil, errors.New("webui: profile store is required")
	}
	if config.MaxConcurrentBatches < 1 {
		config.MaxConcurrentBatches = 1
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = core.DefaultMaxUploadMB << 20
	}
	if config.DefaultVariantCount < 1 {
		config.DefaultVariantCount = core.DefaultVariantCount
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		config:    config,
		deps:      deps,
		logger:    logger.Named("webui"),
		loggingMw: NewLoggingMiddleware(logger, config.LogSkipPaths...),
		batchSem:  semaphore.NewWeighted(int64(config.MaxConcurrentBatches)),
	}
	s.router = s.routes()

	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	s.logger.Info("server created",
		zap.String("addr", addr),
		zap.Bool("mirror_enabled", deps.Mirror.Enabled()),
		zap.Int("max_concurrent_batches", config.MaxConcurrentBatches))
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(s.loggingMw.Handler)
	r.Use(middleware.Recoverer)

	if s.deps.Health != nil {
		r.Get("/health", s.deps.Health.HandleHealth)
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: core.Version, Components: []ComponentStatus{}})
		})
	}
	if s.deps.Exporter != nil {
		r.Handle("/metrics", s.deps.Exporter.Handler())
	}

	auth := s.deps.Auth
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", auth.LoginHandler())
		r.Post("/auth/signup", auth.SignupHandler())
		r.Post("/auth/logout", auth.LogoutHandler())

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Get("/profile", s.handleProfile)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireApproved)
				r.Get("/credits", s.handleCredits)
				r.Post("/mirror", s.handleMirror)
				r.Post("/variants", s.handleVariants)
				r.Get("/history", s.handleHistory)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/profiles", s.handleListProfiles)
				r.Post("/profiles/{id}/approval", s.handleSetApproval)
				r.Get("/stats", s.handleStats)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r
}

// Handler returns the routed handler with middleware, for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx and ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.Start)
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// track runs fn under the shutdown tracker when one is configured.
func (s *Server) track(ctx context.Context, name string, fn func(context.Context) error) error {
	if s.deps.Tracker == nil {
		return fn(ctx)
	}
	return s.deps.Tracker.Track(ctx, name, fn)
}

// recordTask feeds the dashboard store when one is configured.
func (s *Server) recordTask(task metrics.TaskRecord) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTask(task)
	}
}

// currentProfile returns the profile the auth middleware attached.
func currentProfile(r *http.Request) (db.Profile, error) {
	p, ok := ProfileFromContext(r.Context())
	if !ok {
		return db.Profile{}, ErrUnauthorized
	}
	return p, nil
}

// queryLimit parses ?limit=, clamped to [1, maxLimit].
func queryLimit(r *http.Request, def, maxLimit int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
