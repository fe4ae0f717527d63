// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	"errors"
	"net/http"

	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

// Middleware guards routes using the actor from the request context.
type Middleware struct {
	engine *Engine
}

// NewMiddleware creates authorization middleware.
func NewMiddleware(engine *Engine) *Middleware {
	return &Middleware{engine: engine}
}

// Authenticated rejects anonymous requests with 401.
func (m *Middleware) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !reqctx.Actor(r.Context()).Authenticated() {
			WriteError(w, r, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission allows the request only when the actor holds perm.
func (m *Middleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.engine.RequirePermission(r.Context(), reqctx.Actor(r.Context()), perm); err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows the request only for the listed roles (and superusers).
func (m *Middleware) RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.engine.RequireRole(r.Context(), reqctx.Actor(r.Context()), roles...); err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError maps an authorization error to its HTTP response.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *AuthorizationDenied
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.Unauthorized(w, r, "Authentication required")
	case errors.As(err, &denied):
		httpx.WriteErrorWithDetails(w, r, http.StatusForbidden, httpx.CodeForbidden,
			"No tiene permisos para realizar esta acción",
			map[string]string{"permission": string(denied.Permission)})
	default:
		httpx.InternalError(w, r, err)
	}
}
