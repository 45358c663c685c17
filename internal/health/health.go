// Package health serves liveness, readiness and Prometheus metrics over
// HTTP for a running vista instance.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	namespace = "vista"

	// maxGoroutines fails liveness when exceeded; it signals a leak.
	maxGoroutines = 10000

	checkTimeout = 2 * time.Second
)

// Server exposes /live, /ready and /metrics.
type Server struct {
	server   *http.Server
	checks   healthcheck.Handler
	listener net.Listener
}

// NewServer creates a server for addr. Check results are recorded in reg,
// and /metrics serves everything gathered from reg.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	checks := healthcheck.NewMetricsHandler(reg, namespace)
	checks.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))

	mux := http.NewServeMux()
	mux.HandleFunc("/live", checks.LiveEndpoint)
	mux.HandleFunc("/ready", checks.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		checks: checks,
	}
}

// AddReadinessCheck adds a check that must pass before the instance is
// reported ready. Each run is bounded by a short timeout.
func (s *Server) AddReadinessCheck(name string, check healthcheck.Check) {
	s.checks.AddReadinessCheck(name, healthcheck.Timeout(check, checkTimeout))
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves in the background.
// It returns an error if the address cannot be bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		log.Printf("[DEBUG] Health server starting on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] Health server error: %v", err)
		}
		log.Printf("[DEBUG] Health server stopped")
	}()
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[DEBUG] Shutting down health server...")
	return s.server.Shutdown(ctx)
}

// RedisCheck reports whether Redis answers PING.
func RedisCheck(rdb *redis.Client) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}
