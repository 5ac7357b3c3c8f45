// Package server exposes the research fabric over HTTP: a small JSON API for
// managing researches and a WebSocket endpoint for live progress.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomasbielik/precedent/internal/gateway"
	"github.com/tomasbielik/precedent/internal/metrics"
	"github.com/tomasbielik/precedent/internal/service"
)

// Config carries the HTTP-level knobs.
type Config struct {
	ListenAddr     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the HTTP front of the fabric.
type Server struct {
	cfg      Config
	research *service.ResearchService
	ws       *gateway.Handler
	metrics  *metrics.Collector
	logger   *slog.Logger

	httpServer *http.Server
}

// New wires the server and its routes.
func New(cfg Config, research *service.ResearchService, ws *gateway.Handler, m *metrics.Collector, logger *slog.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		research: research,
		ws:       ws,
		metrics:  m,
		logger:   logger,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/researches", s.handleSubmit)
	mux.HandleFunc("GET /api/researches", s.handleList)
	mux.HandleFunc("GET /api/researches/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/researches/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /ws", s.ws)

	handler := http.Handler(mux)
	handler = RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)(handler)
	handler = Logging(s.logger)(handler)
	handler = RequestID(handler)
	return handler
}

// Handler returns the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.cfg.ListenAddr)
		errChan <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
