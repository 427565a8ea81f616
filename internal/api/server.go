// Package api exposes run progress over HTTP while a bulk fetch is
// running: a health check, the live run summary, and Prometheus
// metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/config"
	"github.com/user/edgar-fetcher/internal/manifest"
	"github.com/user/edgar-fetcher/internal/monitoring"
)

// Server holds the dependencies for the progress HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	store      *manifest.Store
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, store *manifest.Store, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:  cfg,
		store:   store,
		metrics: m,
		logger:  l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
