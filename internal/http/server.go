package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"timebot/internal/core"
	"timebot/internal/log"
	"timebot/internal/middleware/ratelimit"
	"timebot/internal/middleware/security"
	"timebot/internal/middleware/trace"
)

// Pinger reports whether the backing store is reachable; used by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Logger *log.Logger
	// Ready is optional; without it /readyz always succeeds.
	Ready     Pinger
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	tracker     core.Tracker
	ready       Pinger
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, tracker core.Tracker, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	clientIP := security.NewClientIP()
	s := &Server{
		tracker:     tracker,
		ready:       opts.Ready,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		tracer:      trace.NewMiddleware(logger, clientIP.Extract),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/users/{user}/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/users/{user}/categories", s.handleAddCategory)
	mux.HandleFunc("POST /api/users/{user}/categories/defaults", s.handleEnsureDefaults)
	mux.HandleFunc("GET /api/users/{user}/entries/active", s.handleGetActive)
	mux.HandleFunc("POST /api/users/{user}/entries", s.handleStartEntry)
	mux.HandleFunc("POST /api/users/{user}/entries/active/stop", s.handleStopActive)
	mux.HandleFunc("GET /api/users/{user}/stats", s.handleStats)
	mux.HandleFunc("GET /api/users/{user}/history", s.handleHistory)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(clientIP.Extract, s.onRateLimited)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(limited(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}
