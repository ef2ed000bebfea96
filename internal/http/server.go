// Package docsynchttp hosts the docsync HTTP surface: the webhook endpoint
// plus health, readiness and metrics routes.
package docsynchttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/theroutercompany/docsync/internal/config"
	"github.com/theroutercompany/docsync/internal/platform/health"
	pkglog "github.com/theroutercompany/docsync/pkg/log"
	"github.com/theroutercompany/docsync/pkg/metrics"
)

type readinessReporter interface {
	Readiness(ctx context.Context) health.Report
}

// Server coordinates HTTP routes and lifecycle hooks.
type Server struct {
	cfg            config.Config
	router         *http.ServeMux
	handler        http.Handler
	httpServer     *http.Server
	healthChecker  readinessReporter
	bootTime       time.Time
	metricsHandler http.Handler
	logger         pkglog.Logger
}

// NewServer constructs a server routing cfg.Webhook.Path to webhook.
func NewServer(cfg config.Config, webhook http.Handler, checker readinessReporter, registry *metrics.Registry, logger pkglog.Logger) *Server {
	if logger == nil {
		logger = pkglog.Shared()
	}
	mux := http.NewServeMux()

	s := &Server{
		cfg:           cfg,
		router:        mux,
		healthChecker: checker,
		bootTime:      time.Now().UTC(),
		logger:        logger,
	}

	var reqMetrics *httpMetrics
	if registry != nil && cfg.Metrics.Enabled {
		s.metricsHandler = registry.Handler()
		reqMetrics = newHTTPMetrics(registry, cfg.Webhook.Path, "/health", "/readyz", "/metrics")
	}

	s.mountRoutes(webhook)

	handler := chain(mux,
		requestMetadata(),
		securityHeaders(),
		logging(logger, reqMetrics),
		bodyLimit(cfg.HTTP.MaxBodyBytes),
	)
	http2Server := &http2.Server{}
	handler = h2c.NewHandler(handler, http2Server)

	s.handler = handler
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureServer(s.httpServer, http2Server); err != nil {
		s.logger.Errorw("failed to configure http2 server", "error", err)
	}

	return s
}

// Handler exposes the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	if s.httpServer == nil {
		return errors.New("http server not initialised")
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout.AsDuration())
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("http server shutdown failed", "error", err)
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			s.logger.Errorw("http server stopped with error", "error", err)
		}
		return err
	}
}

func (s *Server) mountRoutes(webhook http.Handler) {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/readyz", s.handleReadiness)
	if s.metricsHandler != nil {
		s.router.Handle("/metrics", s.metricsHandler)
	}
	if webhook != nil {
		s.router.Handle(s.cfg.Webhook.Path, webhook)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := struct {
		Status    string  `json:"status"`
		Uptime    float64 `json:"uptime"`
		Timestamp string  `json:"timestamp"`
		Version   string  `json:"version,omitempty"`
	}{
		Status:    "ok",
		Uptime:    time.Since(s.bootTime).Seconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	report := health.Report{Status: "ready", CheckedAt: time.Now().UTC()}
	if s.healthChecker != nil {
		report = s.healthChecker.Readiness(r.Context())
	}

	statusCode := http.StatusOK
	if report.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}

	response := struct {
		Status       string                    `json:"status"`
		CheckedAt    time.Time                 `json:"checkedAt"`
		Dependencies []health.DependencyReport `json:"dependencies"`
		RequestID    string                    `json:"requestId,omitempty"`
		TraceID      string                    `json:"traceId,omitempty"`
	}{
		Status:       report.Status,
		CheckedAt:    report.CheckedAt,
		Dependencies: report.Dependencies,
		RequestID:    requestIDFromContext(r.Context()),
		TraceID:      traceIDFromContext(r.Context()),
	}

	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
