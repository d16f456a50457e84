// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vtufest/festreg/internal/auth"
)

// Metrics holds the festreg collectors. It implements auth.MetricsRecorder.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	ResetsTotal        *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	ResetTokensPurged  prometheus.Counter
	DependencyUp       *prometheus.GaugeVec
}

// NewMetrics creates and registers the festreg collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festreg_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festreg_registrations_total",
				Help: "Account registrations by outcome",
			},
			[]string{"outcome"},
		),
		ResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festreg_password_resets_total",
				Help: "Password reset requests and completions by outcome",
			},
			[]string{"stage", "outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festreg_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "festreg_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		ResetTokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "festreg_reset_tokens_purged_total",
			Help: "Consumed or expired reset tokens deleted by the purge loop",
		}),
		DependencyUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "festreg_dependency_up",
				Help: "1 if the dependency passed its last readiness check, 0 otherwise",
			},
			[]string{"dependency"},
		),
	}

	reg.MustRegister(
		m.LoginsTotal,
		m.RegistrationsTotal,
		m.ResetsTotal,
		m.HTTPRequestsTotal,
		m.HTTPDuration,
		m.ResetTokensPurged,
		m.DependencyUp,
	)
	return m
}

// LoginOutcome counts one login.
func (m *Metrics) LoginOutcome(outcome string) {
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// RegistrationOutcome counts one registration.
func (m *Metrics) RegistrationOutcome(outcome string) {
	m.RegistrationsTotal.WithLabelValues(outcome).Inc()
}

// ResetOutcome counts one reset request or completion.
func (m *Metrics) ResetOutcome(stage, outcome string) {
	m.ResetsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// TokensPurged adds n to the purge counter.
func (m *Metrics) TokensPurged(n int64) {
	if n > 0 {
		m.ResetTokensPurged.Add(float64(n))
	}
}

// DependencyChecked records the result of one readiness check.
func (m *Metrics) DependencyChecked(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.DependencyUp.WithLabelValues(name).Set(v)
}

var _ auth.MetricsRecorder = (*Metrics)(nil)
