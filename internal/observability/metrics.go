// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/authkv/authkv/internal/auth"
)

// Metrics contains the authkv Prometheus metrics.
type Metrics struct {
	OutcomesTotal   *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StoreErrors     *prometheus.CounterVec
}

// NewMetrics creates and registers the authkv metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkv_auth_outcomes_total",
				Help: "Total number of credential operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkv_http_requests_total",
				Help: "Total number of API requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authkv_http_request_duration_seconds",
				Help:    "API request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkv_store_errors_total",
				Help: "Total number of failed requests caused by the credential store, by error code",
			},
			[]string{"code"},
		),
	}

	reg.MustRegister(m.OutcomesTotal, m.RequestsTotal, m.RequestDuration, m.StoreErrors)
	return m
}

// RecordOutcome implements auth.OutcomeRecorder.
func (m *Metrics) RecordOutcome(operation string, outcome auth.Outcome) {
	m.OutcomesTotal.WithLabelValues(operation, outcome.String()).Inc()
}

// RecordRequest counts a finished API request.
func (m *Metrics) RecordRequest(route, status string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordStoreError counts a request that failed in the store.
func (m *Metrics) RecordStoreError(code string) {
	m.StoreErrors.WithLabelValues(code).Inc()
}
