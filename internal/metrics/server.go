package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures the metrics HTTP endpoint.
type ServerConfig struct {
	Enabled bool
	Host    string
	Port    int
	Path    string // defaults to "/metrics"
}

// Server serves the collector's registry over HTTP for Prometheus scraping.
type Server struct {
	cfg    ServerConfig
	srv    *http.Server
	listener net.Listener
}

// NewServer builds a Server bound to cfg.Host:cfg.Port, exposing coll's
// registry at cfg.Path ("/metrics" if unset).
func NewServer(cfg ServerConfig, coll *Collector) *Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(coll.Registry(), promhttp.HandlerOpts{}))

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and serves until Stop is called. Returns once the
// listener is ready; serving happens on an internal goroutine.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", s.srv.Addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			_ = err
		}
	}()
	return nil
}

// Stop gracefully shuts down the metrics HTTP server.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
