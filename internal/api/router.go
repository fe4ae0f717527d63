// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/middleware"
	"github.com/clinica-uss/clinicaguard/internal/ratelimit"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

// Router builds the chi route tree.
type Router struct {
	handler *Handler
	authz   *authz.Middleware
	cfg     MiddlewareConfig
}

// NewRouter creates a Router.
func NewRouter(h *Handler, cfg MiddlewareConfig) *Router {
	return &Router{handler: h, authz: authz.NewMiddleware(h.engine), cfg: cfg}
}

// Handler returns the configured http.Handler.
func (rt *Router) Handler() http.Handler {
	h := rt.handler
	r := chi.NewRouter()

	// Order matters: the request ID must exist before anything logs, and the
	// request context before anything reads the client IP.
	r.Use(middleware.RequestID)
	r.Use(reqctx.Middleware(rt.cfg.TrustForwarded))
	r.Use(middleware.AccessLog)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)
	r.Use(rt.cfg.cors())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusMethodNotAllowed, httpx.CodeBadRequest, "Method not allowed")
	})

	r.Get("/health", h.Health)
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.cfg.rateLimit())

		r.With(ratelimit.Middleware(h.limiter, ratelimit.ActionLogin, ratelimit.ClientIdentifier)).
			Post("/auth/login", h.Login)
		r.Get("/auth/session", h.sessions.Status)

		r.Group(func(r chi.Router) {
			r.Use(h.sessions.Authenticate)
			r.Use(rt.authz.Authenticated)

			r.Post("/auth/logout", h.Logout)
			r.Get("/me", h.Me)
			r.Post("/authz/check", h.Check)

			r.Route("/audit", func(r chi.Router) {
				r.Post("/events", h.RecordEvent)
				r.With(rt.authz.RequirePermission(authz.PermExportAudit)).Get("/export", h.ExportAudit)
				r.Group(func(r chi.Router) {
					r.Use(rt.authz.RequirePermission(authz.PermViewAudit))
					r.Get("/", h.ListAudit)
					r.Get("/{id}", h.GetAuditEntry)
				})
			})
		})
	})

	return r
}
