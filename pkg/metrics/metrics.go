// Package metrics exposes the Prometheus metrics of promptgrid over HTTP.
// All metrics are defined in their respective packages (client, batch,
// status) via promauto and registered with the default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server serves Handler on an address for the duration of a run.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Start listens on addr and serves in the background. Use ":0" for a
// random port.
func Start(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	log.Info().Str("component", "metrics").Str("addr", ln.Addr().String()).Msg("Metrics server started")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	err := <-s.done
	log.Info().Str("component", "metrics").Msg("Metrics server stopped")
	return err
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - promptgrid_requests_total{outcome} (Counter): Calls by outcome (success, client, server,
//     rate_limit, timeout, network, protocol, canceled, skipped, not_configured)
//   - promptgrid_request_duration_seconds (Histogram): Request duration
//   - promptgrid_consecutive_failures (Gauge): Current failure budget usage
//   - promptgrid_failure_budget_exhausted_total (Counter): Budget exhaustions
//
// Batch Metrics (pkg/batch):
//   - promptgrid_groups_total (Counter): Dispatched groups
//   - promptgrid_group_duration_seconds (Histogram): Time until all calls of a group returned
//   - promptgrid_prompts_total{result} (Counter): Prompts by result (success, failure)
//   - promptgrid_run_aborts_total{reason} (Counter): Runs stopped early (budget_exhausted, canceled)
//   - promptgrid_call_panics_total (Counter): Calls converted from a panic
//
// Status Metrics (pkg/status):
//   - promptgrid_status_writes_total{result} (Counter): Redis status writes (ok, error)
//
// Example Prometheus Queries:
//
//   # Failure ratio
//   sum(rate(promptgrid_prompts_total{result="failure"}[5m])) /
//   sum(rate(promptgrid_prompts_total[5m]))
//
//   # Budget close to exhaustion
//   promptgrid_consecutive_failures >= 7
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(promptgrid_request_duration_seconds_bucket[5m]))
