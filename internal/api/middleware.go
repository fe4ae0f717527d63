// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

// MiddlewareConfig holds the CORS and request flood settings.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
	CORSMaxAge         int // seconds

	TrustForwarded bool

	// RateLimitRequests <= 0 disables the flood guard.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DefaultMiddlewareConfig returns the defaults. CORS origins start empty and
// must be configured explicitly.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSAllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		CORSMaxAge:         600,
		RateLimitRequests:  300,
		RateLimitWindow:    time.Minute,
	}
}

// cors returns the CORS handler. Credentials are allowed so the session
// cookie crosses origins.
func (c MiddlewareConfig) cors() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   c.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   c.CORSAllowedHeaders,
		ExposedHeaders:   []string{"X-Request-ID", "X-Session-Expires-In", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           c.CORSMaxAge,
	})
}

// rateLimit is a coarse per-IP flood guard over the whole API. Login
// lockout is separate and lives in the ratelimit package.
func (c MiddlewareConfig) rateLimit() func(http.Handler) http.Handler {
	if c.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		c.RateLimitRequests,
		c.RateLimitWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return reqctx.FromContext(r.Context()).ClientIP, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.TooManyRequests(w, r, c.RateLimitWindow, "Demasiadas solicitudes. Intenta nuevamente más tarde.", nil)
		}),
	)
}
