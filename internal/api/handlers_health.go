// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is the body of /health and /health/ready.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Uptime float64           `json:"uptime_seconds"`
}

// HealthLive handles GET /health/live. It only says the process is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	httpx.Success(w, r, HealthStatus{Status: "alive", Uptime: time.Since(h.startTime).Seconds()})
}

// Health handles GET /health and /health/ready: 200 when every check passes,
// 503 with the failing checks otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{Status: "healthy", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("check", name).Msg("Health check failed")
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			continue
		}
		status.Checks[name] = "ok"
	}
	status.Uptime = time.Since(h.startTime).Seconds()

	if status.Status != "healthy" {
		httpx.JSON(w, http.StatusServiceUnavailable, httpx.Response{
			Data:  status,
			Error: &httpx.Error{Code: httpx.CodeServiceUnavailable, Message: "One or more dependencies are unavailable", RequestID: logging.RequestIDFromContext(r.Context())},
			Meta:  &httpx.Meta{RequestID: logging.RequestIDFromContext(r.Context()), Timestamp: time.Now().UTC()},
		})
		return
	}
	httpx.Success(w, r, status)
}
