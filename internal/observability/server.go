// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package observability owns the Prometheus registry, the process tracer
// provider, and the ops listener that serves /metrics and the health checks.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 2 * time.Second

// Check reports the health of one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Checks names the dependencies the readiness endpoint reports on.
type Checks map[string]Check

// Readiness statuses.
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
	checkOK        = "ok"
)

// ReadinessReport is the /healthz/readiness body. Checks maps each
// dependency to "ok" or its failure message.
type ReadinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessReport is the /healthz/liveness body.
type LivenessReport struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Server is the ops listener. It is separate from the public API so
// scrapers and orchestrators never share its rate limits or middleware.
type Server struct {
	addr         string
	listener     net.Listener
	httpServer   *http.Server
	registry     *prometheus.Registry
	metrics      *Metrics
	checks       Checks
	checkTimeout time.Duration
	logger       *slog.Logger
	running      atomic.Bool
	startedAt    time.Time
	now          func() time.Time
}

// NewServer creates the ops server on addr ("host:port"). Every check in
// checks runs on each readiness request. A nil logger selects slog.Default().
func NewServer(addr string, checks Checks, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:         addr,
		registry:     registry,
		metrics:      NewMetrics(registry),
		checks:       checks,
		checkTimeout: DefaultCheckTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Registry returns the server's private registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Metrics returns the festreg collectors registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler routes the ops endpoints. Start serves it; tests may mount it
// directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Start binds addr and serves in the background. The returned channel
// receives a serve failure and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OPS_SERVER_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OPS_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.startedAt = s.now()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Debug("observability listener bound",
		"addr", listener.Addr().String(),
		"checks", s.checkNames())
	return errCh, nil
}

// Stop shuts the listener down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("OPS_SHUTDOWN_FAILED").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Ready runs every check concurrently and reports the outcome of each.
func (s *Server) Ready(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Status: StatusReady}
	if len(s.checks) == 0 {
		return report
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	report.Checks = make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
			defer cancel()
			err := check(checkCtx)
			s.metrics.DependencyChecked(name, err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Status = StatusNotReady
				report.Checks[name] = err.Error()
				return
			}
			report.Checks[name] = checkOK
		}()
	}
	wg.Wait()
	return report
}

func (s *Server) checkNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	report := LivenessReport{Status: StatusAlive}
	if !s.startedAt.IsZero() {
		report.UptimeSeconds = int64(s.now().Sub(s.startedAt).Seconds())
	}
	s.writeReport(w, http.StatusOK, report)
}

// handleReadiness answers 503 while any dependency check fails.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.Ready(r.Context())
	status := http.StatusOK
	if report.Status != StatusReady {
		status = http.StatusServiceUnavailable
		s.logger.WarnContext(r.Context(), "readiness check failed", "checks", report.Checks)
	}
	s.writeReport(w, status, report)
}

func (s *Server) writeReport(w http.ResponseWriter, status int, report any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Debug("health response not written", "error", err)
	}
}
