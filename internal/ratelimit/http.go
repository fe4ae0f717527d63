// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

// BlockedMessage is the user-facing text for a blocked identifier.
func BlockedMessage(remaining time.Duration) string {
	minutes := int(remaining/time.Minute) + 1
	return fmt.Sprintf("Demasiados intentos fallidos. Intenta nuevamente en %d minuto(s).", minutes)
}

// WriteBlocked writes a 429 for err.
func WriteBlocked(w http.ResponseWriter, r *http.Request, err *RateLimited) {
	httpx.TooManyRequests(w, r, err.Remaining, BlockedMessage(err.Remaining), map[string]any{
		"action":            err.Action,
		"remaining_seconds": ceilSeconds(err.Remaining),
	})
}

// ClientIdentifier keys requests by the client IP from the request context.
func ClientIdentifier(r *http.Request) string {
	return reqctx.FromContext(r.Context()).ClientIP
}

// Middleware rejects requests whose identifier is blocked for action. Store
// errors let the request through; the handler still records failures.
func Middleware(l *Limiter, action string, identify func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identify(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			err := l.Check(r.Context(), id, action)
			var limited *RateLimited
			switch {
			case errors.As(err, &limited):
				l.security.LogLoginBlocked(id, action, ceilSeconds(limited.Remaining))
				WriteBlocked(w, r, limited)
				return
			case err != nil:
				logging.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("Rate limit check failed")
			}
			next.ServeHTTP(w, r)
		})
	}
}
