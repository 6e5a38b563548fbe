package http

import (
	"context"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"optium/internal/cache"
	applog "optium/internal/log"
	"optium/internal/middleware/ratelimit"
	"optium/internal/middleware/security"
	"optium/internal/middleware/trace"
	"optium/internal/services"
	appweb "optium/web"
)

// ReportGenerator builds reports for handlers.
type ReportGenerator interface {
	Generate(ctx context.Context, req services.ReportRequest) (services.ReportResponse, error)
	RowsLoaded(ctx context.Context) (int, error)
}

// ExportRequester queues spreadsheet exports.
type ExportRequester interface {
	Enabled() bool
	RequestExport(ctx context.Context, req services.ReportRequest) (uuid.UUID, error)
}

// DatasetStatus reports whether the dataset has been loaded.
type DatasetStatus interface {
	Loaded() bool
	LoadedAt() time.Time
}

// CacheStats exposes report cache counters.
type CacheStats interface {
	Stats() cache.Stats
}

// Options configures NewServer. Exports and Cache are optional.
type Options struct {
	Addr               string
	Logger             *applog.Logger
	Reports            ReportGenerator
	Exports            ExportRequester
	Dataset            DatasetStatus
	Cache              CacheStats
	RateLimitPerMinute int
}

type appMetrics struct {
	reportsServed int64
	downloads     int64
	exportsQueued int64
	uptime        time.Time
}

type Server struct {
	http.Server
	logger    *applog.Logger
	templates *template.Template

	reports ReportGenerator
	exports ExportRequester
	dataset DatasetStatus
	cache   CacheStats

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		logger:           logger,
		reports:          opts.Reports,
		exports:          opts.Exports,
		dataset:          opts.Dataset,
		cache:            opts.Cache,
		rateLimiter:      newRateLimiter(opts.RateLimitPerMinute),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.Handle("/report", security.NoStore(http.HandlerFunc(s.handleReport)))
	mux.Handle("/api/report", security.NoStore(http.HandlerFunc(s.handleAPIReport)))
	mux.Handle("/report.xlsx", security.NoStore(http.HandlerFunc(s.handleSummaryDownload)))
	mux.Handle("/monthly.xlsx", security.NoStore(http.HandlerFunc(s.handleMonthlyDownload)))

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)
	mux.Handle("/exports", limited(http.HandlerFunc(s.handleCreateExport)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = applog.Middleware(logger, trace.RequestID)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func newRateLimiter(perMinute int) *ratelimit.Limiter {
	cfg := ratelimit.DefaultConfig()
	cfg.RequestsPerMinute = perMinute
	return ratelimit.NewLimiter(cfg)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many export requests, please retry later").
		TriggerErrorNotification("Too many export requests").
		Write(w)
}
