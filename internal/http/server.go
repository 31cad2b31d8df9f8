package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/goals"
	"fintrack/internal/insights"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/query"
	"fintrack/internal/services"
)

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API is served from.
type Deps struct {
	Ledger   *services.LedgerService
	Goals    *goals.Service
	Engine   *analytics.Engine
	Insights *insights.Generator
	Query    *query.Interpreter
	Metrics  *metrics.Metrics
	Logger   *log.Logger

	// RequestsPerMinute limits mutating requests per client; zero uses the
	// limiter default.
	RequestsPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	engine   *analytics.Engine
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Engine == nil {
		deps.Engine = analytics.NewEngine()
	}
	if deps.Insights == nil {
		deps.Insights = insights.NewGenerator(deps.Engine)
	}
	if deps.Query == nil {
		deps.Query = query.NewInterpreter(deps.Engine)
	}
	if deps.Goals == nil && deps.Ledger != nil {
		deps.Goals = goals.NewService(deps.Ledger.Store(), goals.WithClock(deps.Engine.Now))
	}

	rlConfig := ratelimit.DefaultConfig()
	rlConfig.RequestsPerMinute = deps.RequestsPerMinute

	s := &Server{
		deps:     deps,
		engine:   deps.Engine,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(rlConfig),
		detector: security.NewDetector(),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /api/transactions/capture", s.handleCaptureTransaction)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/trend", s.handleTrend)
	mux.HandleFunc("GET /api/patterns", s.handlePatterns)
	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("GET /api/insights/prompt", s.handleInsightPrompt)
	mux.HandleFunc("POST /api/query", s.handleQuery)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleContribute)
	mux.HandleFunc("GET /api/goals/{id}/suggestion", s.handleSuggestion)

	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	mux.HandleFunc("POST /api/import", s.handleImport)
}

// middleware wraps mux, outermost first: tracing, probe screening, security
// headers, rate limiting, then request metrics next to the mux so the
// matched route pattern is visible.
func (s *Server) middleware(mux http.Handler) http.Handler {
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, s.deps.Logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)

	var h http.Handler = s.instrument(mux)
	h = log.Middleware(s.logger, trace.GetRequestID)(h)
	h = limit(h)
	h = headers.Middleware(h)
	h = s.detector.Middleware(s.logger)(h)
	return tracer.Middleware(h)
}

// instrument records request count and latency per matched route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		s.deps.Metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.deps.Metrics.RateLimited.Inc()
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Shutdown stops the limiter and drains the HTTP server. Later calls are
// no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		ErrorResponse(http.StatusServiceUnavailable, "ledger not configured").Write(w)
		return
	}
	if p, ok := s.deps.Ledger.Store().(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// IsServerClosed reports whether err is the normal result of Shutdown.
func IsServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
