package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/veritube/veritube-agent/internal/cache"
	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/metrics"
	"github.com/veritube/veritube-agent/internal/pipeline"
	"github.com/veritube/veritube-agent/internal/pipelines"
)

// WatcherState is the part of the inbox watcher the status endpoint reads.
type WatcherState interface {
	IsPaused() bool
	Imported() int64
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host    string
	Port    int
	Version string

	Pipeline     pipeline.Pipeline
	Cache        cache.Store
	CacheBackend string
	Runs         *catalog.Service
	Doctor       *pipelines.CachedDoctor
	Runner       pipelines.Runner
	Watcher      WatcherState
	Metrics      *metrics.Metrics
	// Tokens resolves the bearer token; nil or an empty token leaves the
	// API open.
	Tokens TokenSource

	AIEnabled     bool
	WindowSeconds int
	Logger        *slog.Logger
	StartTime     time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Extraction and fact-checks can take minutes.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
