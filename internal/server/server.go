package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shaharia-lab/tradedev/internal/build"
	"github.com/shaharia-lab/tradedev/internal/devproxy"
	"github.com/shaharia-lab/tradedev/internal/metrics"
)

// Server is the local development HTTP server.
type Server struct {
	proxy      *devproxy.Router
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new Server listening on addr. Requests matching a proxy rule
// are forwarded upstream; everything else is handled by static.
func New(addr string, proxy *devproxy.Router, static http.Handler, m *metrics.Metrics, corsOrigins []string, logger *slog.Logger) *Server {
	s := &Server{
		proxy:  proxy,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// Server introspection
	r.Route("/__tradedev", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/routes", s.handleRoutes)
	})

	// Proxy rules first, then the SPA.
	r.With(proxy.Middleware).Handle("/*", static)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requestLogger is a chi middleware that logs each incoming request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		}
		if rule, ok := s.proxy.Match(r.URL.EscapedPath()); ok {
			attrs = append(attrs, slog.String("proxy_rule", rule.Prefix()))
		}
		s.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, build.Fields())
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	rules := s.proxy.Rules()
	out := make([]devproxy.RuleInfo, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
