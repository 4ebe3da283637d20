// Package server hosts the HTTP router and the request pipeline: a typed
// middleware chain whose outermost step is always an error boundary.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server owns the chi router and the listening http.Server.
type Server struct {
	Router  *chi.Mux
	Port    int
	Metrics *Metrics

	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server with the outer http middlewares applied: logging,
// metrics, a last-resort panic recoverer and OpenTelemetry instrumentation.
// Per-route behaviour is composed with Chain.
func New(port int, logger *slog.Logger, metrics *Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	r := chi.NewRouter()
	r.Use(LoggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "account-gateway")
	})

	return &Server{
		Router:  r,
		Port:    port,
		Metrics: metrics,
		logger:  logger,
	}
}

// Start listens on the configured port and serves in the background. It
// returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.Port, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
