package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightclean/callbridge/internal/call"
	"github.com/brightclean/callbridge/internal/health"
	"github.com/brightclean/callbridge/internal/observe"
	"github.com/brightclean/callbridge/internal/resilience"
)

const shutdownTimeout = 5 * time.Second

// viewSource is the part of [call.Manager] the status server reads.
type viewSource interface {
	View() call.View
}

// breakerState is the part of [resilience.Breaker] readiness reads.
type breakerState interface {
	State() resilience.State
}

// statusServer exposes probes, Prometheus metrics and the current call view.
type statusServer struct {
	srv *http.Server
}

func newStatusServer(addr string, views viewSource, breaker breakerState, m *observe.Metrics) *statusServer {
	return &statusServer{srv: &http.Server{
		Addr:              addr,
		Handler:           statusHandler(views, breaker, m),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func statusHandler(views viewSource, breaker breakerState, m *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	health.New(health.Checker{
		Name:     "bridge",
		Advisory: true,
		Check: func(context.Context) error {
			if st := breaker.State(); st == resilience.StateOpen {
				return fmt.Errorf("circuit %s", st)
			}
			return nil
		},
	}).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /call", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(views.View())
	})
	return observe.Middleware(m)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *statusServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status server: listen: %w", err)
	}
	slog.Info("status server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("status server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}
