package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"energy-meter/internal/meter"
	"energy-meter/internal/metrics"
	"energy-meter/internal/tariff"
)

// Backend is what the HTTP layer needs from the meter service.
type Backend interface {
	Ingest(ctx context.Context, raw map[string]any) (meter.Result, error)
	Snapshot() meter.Snapshot
	Schedule() tariff.Schedule
}

// Options configure the listener.
type Options struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	ExposeMetrics   bool
}

// Server serves the dashboard API.
type Server struct {
	opts    Options
	backend Backend
	metrics *metrics.Metrics
	router  *gin.Engine
	logger  zerolog.Logger
}

// New builds the router. m may be nil, in which case /metrics is not mounted.
func New(opts Options, backend Backend, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		opts:    opts,
		backend: backend,
		metrics: m,
		router:  gin.New(),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware(s.opts.AllowedOrigins))
	s.router.Use(requestLogger(s.logger, s.metrics))

	api := s.router.Group("/api")
	{
		api.POST("/sensor-data", s.postSensorData)
		api.GET("/dashboard-data", s.getDashboardData)
		api.GET("/analytics-data", s.getAnalyticsData)
		api.GET("/billing-data", s.getBillingData)
		api.GET("/history", s.getHistory)
		api.GET("/advisories", s.getAdvisories)
	}

	s.router.GET("/healthz", s.getHealth)
	if s.opts.ExposeMetrics && s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
