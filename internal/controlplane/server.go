// Package controlplane implements the bot's local HTTP admin surface:
// health, metrics, the dashboard static bundle, and a small REST API
// for user/thread administration and live environment edits (spec.md
// §4.6). Grounded on the teacher's internal/api/server.go (route
// registration, SSE streaming idiom) and internal/web/server.go (the
// embedded static asset bundle), generalized onto a chi router the way
// ashureev-shsh-labs/cmd/server/main.go layers chi over the same
// net/http primitives the teacher uses directly.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mesbot/dispatch/internal/buildinfo"
	"github.com/mesbot/dispatch/internal/config"
	"github.com/mesbot/dispatch/internal/dispatcher"
	"github.com/mesbot/dispatch/internal/events"
	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
	"github.com/mesbot/dispatch/internal/web"
)

// maxBodyBytes bounds request bodies the control plane will parse
// before rejecting with 413, per spec.md §4.6 ("≥64 KiB recommended").
const maxBodyBytes = 64 * 1024

// Config configures a Server.
type Config struct {
	Address    string
	Port       int
	Store      *store.Store
	Metrics    *metrics.Registry
	Config     *config.Config
	EnvPath    string
	Dispatcher *dispatcher.Dispatcher
	Adapter    *messenger.Adapter
	Events     *events.Bus // optional; nil-safe
	Logger     *slog.Logger
}

// Server is the control plane's HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger
	server *http.Server
}

// New creates a Server from cfg. Call Start to bind and serve.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "controlplane"),
	}
}

// Start binds the listener and serves until ctx is cancelled. On
// *address already in use*, it logs a warning and returns nil rather
// than an error: the control plane is optional infrastructure and the
// bot must remain fully functional without it (spec.md §4.6).
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Use(s.withLogging)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", s.handleOverview)

		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.With(limitBody).Post("/users/{id}/block", s.handleSetBlocked)
		r.With(limitBody).Post("/users/{id}/admin", s.handleSetAdmin)

		r.Get("/threads", s.handleListThreads)
		r.Get("/threads/{id}", s.handleGetThread)
		r.Get("/messages", s.handleListMessages)

		r.Get("/env", s.handleGetEnv)
		r.With(limitBody).Post("/env", s.handlePostEnv)

		r.Get("/events/stream", s.handleEventStream)
	})

	r.Handle("/dashboard", web.StripAndServe("/dashboard"))
	r.Handle("/dashboard/*", web.StripAndServe("/dashboard"))

	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // long enough for the SSE feed
	}

	ln, err := listen(addr)
	if err != nil {
		if isAddrInUse(err) {
			s.logger.Warn("control plane port unavailable, continuing without it", "address", addr, "error", err)
			return nil
		}
		return fmt.Errorf("control plane listen: %w", err)
	}

	s.logger.Info("control plane listening", "address", addr)
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server, if running.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"request_id", r.Context().Value(requestIDKey{}),
		)
	})
}

// corsMiddleware allows any origin, per spec.md §4.6 ("CORS allow-origin
// * plus the standard preflight handling").
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody caps the request body at maxBodyBytes; handlers that read a
// JSON body via decodeJSON surface the resulting "too large" read error
// as 413.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) buildInfo() map[string]string {
	return buildinfo.RuntimeInfo()
}
