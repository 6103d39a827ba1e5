// Package server exposes registered endpoints as a read-only HTTP API.
//
//	GET /                        index of permitted routes
//	GET /{schema.table}/         paginated list
//	GET /{schema.table}/{pk}     single row by primary key
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/autorest/internal/endpoint"
	"github.com/koustreak/autorest/internal/logger"
)

// Permission decides whether a request may read a schema.
type Permission interface {
	Allowed(r *http.Request, schema string) bool
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(r *http.Request, schema string) bool

// Allowed implements Permission.
func (f PermissionFunc) Allowed(r *http.Request, schema string) bool { return f(r, schema) }

// AllowAll permits every schema.
var AllowAll Permission = PermissionFunc(func(*http.Request, string) bool { return true })

// Options configures a Server.
type Options struct {
	// QueryTimeout bounds every request's database work. Zero disables it.
	QueryTimeout time.Duration

	// DefaultLimit and MaxLimit bound list page sizes.
	DefaultLimit int
	MaxLimit     int

	// Permission filters schemas; nil allows all.
	Permission Permission
}

// Server serves a Registry over HTTP.
type Server struct {
	reg  *endpoint.Registry
	opts Options
	log  *logger.Logger
	mux  chi.Router
}

// New builds the router for reg.
func New(reg *endpoint.Registry, opts Options, log *logger.Logger) *Server {
	if opts.Permission == nil {
		opts.Permission = AllowAll
	}
	def := endpoint.DefaultConfig()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = def.DefaultLimit
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{reg: reg, opts: opts, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.Get("/", s.index)
	r.Route("/{route}", func(r chi.Router) {
		r.Use(s.resolve)
		r.Get("/", s.list)
		r.Get("/{pk}", s.detail)
	})

	s.mux = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", addr).Int("endpoints", s.reg.Len()).Logger().Info("serving read API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down read API")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(log.WithContext(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Request(r.Method, r.URL.Path, status, time.Since(start))
	})
}
