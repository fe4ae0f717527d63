// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package reqctx carries the acting principal and client metadata of one
// inbound request through context.Context.
//
// The value is immutable: WithActor and friends return a derived context, so
// concurrent requests never observe each other's data.
package reqctx

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
)

// RequestContext describes who is acting and from where.
type RequestContext struct {
	Actor     identity.Principal
	ClientIP  string
	UserAgent string
	RequestID string
	SessionID string
}

type contextKey struct{}

// With returns a copy of ctx carrying rc.
func With(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the request context, or the zero value (anonymous,
// no client metadata) when none was set.
func FromContext(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(contextKey{}).(RequestContext)
	return rc
}

// WithActor returns a copy of ctx whose request context names p as the actor.
func WithActor(ctx context.Context, p identity.Principal) context.Context {
	rc := FromContext(ctx)
	rc.Actor = p
	return With(ctx, rc)
}

// WithSession returns a copy of ctx with the actor and session ID set.
func WithSession(ctx context.Context, p identity.Principal, sessionID string) context.Context {
	rc := FromContext(ctx)
	rc.Actor = p
	rc.SessionID = sessionID
	return With(ctx, rc)
}

// Actor is shorthand for FromContext(ctx).Actor.
func Actor(ctx context.Context) identity.Principal {
	return FromContext(ctx).Actor
}

// ClientIP returns the first address of X-Forwarded-For when trustForwarded
// is set and the header is present, otherwise the host part of RemoteAddr.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FromRequest builds an anonymous RequestContext from r.
func FromRequest(r *http.Request, trustForwarded bool) RequestContext {
	return RequestContext{
		ClientIP:  ClientIP(r, trustForwarded),
		UserAgent: r.UserAgent(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

// Middleware installs an anonymous RequestContext on every request. The
// session middleware later fills in the actor.
func Middleware(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := With(r.Context(), FromRequest(r, trustForwarded))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
