// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"secondhand-aggregator/metrics"
	"secondhand-aggregator/models"
	"secondhand-aggregator/services"
	"secondhand-aggregator/utils"
)

// CacheClearer is a shared cache tier the DELETE /api/cache route also empties.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

type Option func(*Server)

func WithMirror(m CacheClearer) Option           { return func(s *Server) { s.mirror = m } }
func WithMetrics(m *metrics.Metrics) Option      { return func(s *Server) { s.metrics = m } }
func WithAllowedOrigins(hosts []string) Option   { return func(s *Server) { s.origins = hosts } }
func WithShutdownTimeout(d time.Duration) Option { return func(s *Server) { s.shutdownTimeout = d } }

type Server struct {
	orch            *services.Orchestrator
	mirror          CacheClearer
	metrics         *metrics.Metrics
	origins         []string
	shutdownTimeout time.Duration
	log             *zap.Logger
	engine          *gin.Engine
}

func New(orch *services.Orchestrator, options ...Option) *Server {
	s := &Server{
		orch:            orch,
		shutdownTimeout: 10 * time.Second,
		log:             utils.Named("http"),
	}
	for _, opt := range options {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(
		s.logRequests,
		allowCORS(s.origins),
		gin.CustomRecovery(s.recovered),
	)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.engine.Group("/api")
	api.GET("/search", s.search)
	api.GET("/sources", s.sources)
	api.GET("/cache/stats", s.cacheStats)
	api.DELETE("/cache", s.clearCache)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on http", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.log.Error("handler panic", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
		"items": []models.Listing{},
	})
}
