// Package webhook exposes a Dispatcher over HTTP.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imkarma/taskplan/internal/dispatch"
)

// Server is the webhook HTTP server.
type Server struct {
	dispatcher *dispatch.Dispatcher
	router     *gin.Engine
	logger     *slog.Logger
	now        func() time.Time
	metrics    http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides the time stamped on responses.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a webhook server routing to d.
func NewServer(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.router = router

	hooks := router.Group("/webhooks")
	{
		hooks.POST("/task/create", s.handleEvent(dispatch.EventTaskCreate))
		hooks.POST("/task/complete", s.handleEvent(dispatch.EventTaskComplete))
		hooks.POST("/task/error", s.handleEvent(dispatch.EventTaskError))
		hooks.POST("/task/status", s.handleEvent(dispatch.EventTaskStatus))
		hooks.POST("/report/generate", s.handleEvent(dispatch.EventReportGenerate))
		hooks.POST("/plan/import", s.handleEvent(dispatch.EventPlanImport))
		hooks.POST("/batch/process", s.handleBatch)
		hooks.POST("/events/:type", s.handleGenericEvent)
		hooks.GET("/health", s.handleHealth)
	}

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Webhook server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Webhook request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
