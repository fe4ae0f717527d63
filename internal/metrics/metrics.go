// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package metrics holds the Prometheus collectors for the whole process.
// Collectors are registered on the default registry via promauto and exposed
// at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinicaguard_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinicaguard_http_active_requests",
			Help: "Requests currently being served",
		},
	)

	// Authorization
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_authz_decisions_total",
			Help: "Authorization decisions by check kind, role and outcome",
		},
		[]string{"check", "role", "decision"},
	)

	AuthzErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_authz_errors_total",
			Help: "Authorization checks that failed to resolve (counted as deny)",
		},
		[]string{"stage"},
	)

	// Rate limiting
	RateLimitAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_ratelimit_attempts_total",
			Help: "Failed attempts recorded by action",
		},
		[]string{"action"},
	)

	RateLimitBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_ratelimit_blocks_total",
			Help: "Identifiers blocked by action",
		},
		[]string{"action"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_ratelimit_rejections_total",
			Help: "Requests rejected because the identifier was blocked",
		},
		[]string{"action"},
	)

	// Sessions
	SessionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_session_outcomes_total",
			Help: "Session security check outcomes",
		},
		[]string{"outcome"},
	)

	// Audit
	AuditEntriesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_audit_entries_total",
			Help: "Audit entries persisted by action kind",
		},
		[]string{"action"},
	)

	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicaguard_audit_write_failures_total",
			Help: "Audit entries that could not be persisted",
		},
		[]string{"reason"},
	)

	AuditWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinicaguard_audit_write_duration_seconds",
			Help:    "Latency of audit store writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	AuditBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinicaguard_audit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// RecordAuthzDecision counts one decision. role is "" for anonymous or roleless callers.
func RecordAuthzDecision(check, role string, allowed bool) {
	if role == "" {
		role = "none"
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	AuthzDecisions.WithLabelValues(check, role, decision).Inc()
}

// RecordAuthzError counts a decision that failed to resolve.
func RecordAuthzError(stage string) {
	AuthzErrors.WithLabelValues(stage).Inc()
}

// RecordAuditWrite counts a persisted audit entry.
func RecordAuditWrite(action string, d time.Duration) {
	AuditEntriesWritten.WithLabelValues(action).Inc()
	AuditWriteDuration.Observe(d.Seconds())
}

// RecordAuditFailure counts an audit entry that was dropped.
func RecordAuditFailure(reason string) {
	AuditWriteFailures.WithLabelValues(reason).Inc()
}
