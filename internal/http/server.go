// Package http serves the session operations as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"expenses/internal/cache"
	"expenses/internal/currency"
	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
)

type Server struct {
	http.Server
	sessions  *sessionManager
	converter *currency.Converter
	limiter   *ratelimit.Limiter
	sweeper   *cache.Manager

	shutdownOnce sync.Once
}

// Options tunes the server; zero values mean defaults.
type Options struct {
	SessionIdle       time.Duration
	RequestsPerMinute int
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// The converter answers /api/convert, which needs no session.
func NewServer(addr string, newSession SessionFactory, converter *currency.Converter, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		sessions:  newSessionManager(newSession, opts.SessionIdle),
		converter: converter,
		limiter:   ratelimit.NewLimiter(limiterCfg),
		sweeper:   cache.NewManager(),
	}
	s.sweeper.Register(s.sessions.entries)
	s.sweeper.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("DELETE /api/session", s.handleLogout)
	mux.HandleFunc("POST /api/expenses", s.withSession(s.handleAddExpense))
	mux.HandleFunc("GET /api/expenses", s.withSession(s.handleListExpenses))
	mux.HandleFunc("GET /api/summary", s.withSession(s.handleSummary))
	mux.HandleFunc("GET /api/convert", s.handleConvert)
	mux.HandleFunc("GET /api/export", s.withSession(s.handleExport))

	var handler http.Handler = mux
	handler = s.limiter.Middleware(extractClientIP, http.MethodPost)(handler)
	handler = log.AccessLog(extractClientIP)(handler)
	handler = log.Middleware(logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// Shutdown stops background sweeps and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.sweeper.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
