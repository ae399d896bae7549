// Package web provides the curator HTTP API and status page.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/fieldpipe/internal/config"
	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/web/middleware"
)

// Files is the read side of the file and ledger store.
type Files interface {
	Ping(ctx context.Context) error
	ListFiles(ctx context.Context, status core.FileStatus, limit int) ([]core.FileRecord, error)
	GetFile(ctx context.Context, id int64) (core.FileRecord, error)
	FileHistory(ctx context.Context, id int64) ([]core.StatusChange, error)
	LatestFindings(ctx context.Context, fileID int64, zone core.Zone) ([]core.LedgerEntry, error)
	CountFilesByStatus(ctx context.Context) (map[core.FileStatus]int64, error)
}

// Schemas describes registered tables.
type Schemas interface {
	Describe(ctx context.Context, table string) (core.TableSchema, error)
	Tables() []string
}

// Server is the curator HTTP server.
type Server struct {
	cfg     *config.Config
	files   Files
	schemas Schemas
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server with its routes.
func NewServer(cfg *config.Config, files Files, schemas Schemas) *Server {
	s := &Server{
		cfg:     cfg,
		files:   files,
		schemas: schemas,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleStatusPage)
	s.router.Get("/healthz", s.handleHealth)

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.Security.RateLimit > 0 {
			r.Use(middleware.NewRateLimiter(s.cfg.Security.RateLimit, time.Minute).Middleware)
		}
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		r.Get("/files", s.handleListFiles)
		r.Get("/files/{id}", s.handleGetFile)
		r.Get("/files/{id}/history", s.handleFileHistory)
		r.Get("/files/{id}/findings", s.handleFileFindings)

		r.Get("/schemas", s.handleListSchemas)
		r.Get("/schemas/{table}", s.handleDescribeSchema)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", ln.Addr().String())
	return s.server.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON. Encoding errors are logged since the header
// is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
