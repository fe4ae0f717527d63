// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/ratelimit"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

const msgBadCredentials = "Usuario o contraseña incorrectos."

// UserResponse describes the logged-in principal.
type UserResponse struct {
	ID          string                    `json:"id"`
	Username    string                    `json:"username"`
	Email       string                    `json:"email,omitempty"`
	Role        string                    `json:"role,omitempty"`
	RoleName    string                    `json:"role_name,omitempty"`
	Permissions map[authz.Permission]bool `json:"permissions,omitempty"`
}

// Login handles POST /api/v1/auth/login.
//
// The route runs behind ratelimit.Middleware keyed by client IP, so a
// blocked IP never reaches the password check. Each failure counts one
// attempt; the failure that reaches the threshold is answered with 429.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	rc := reqctx.FromContext(ctx)
	ip := rc.ClientIP

	p, err := h.directory.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) && !errors.Is(err, identity.ErrInactive) {
			httpx.InternalError(w, r, err)
			return
		}
		h.security.LogLoginFailure(req.Username, ip, rc.UserAgent, err.Error())
		h.loginFailed(w, r, ip)
		return
	}

	if err := h.limiter.Clear(ctx, ip, ratelimit.ActionLogin); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to clear login attempts")
	}

	s, err := h.sessions.Create(ctx, w, r, p)
	if err != nil {
		httpx.InternalError(w, r, err)
		return
	}
	ctx = reqctx.WithSession(ctx, p, s.ID)
	h.trail.Login(ctx, p)
	h.security.LogLoginSuccess(p.ID, p.Username, ip, rc.UserAgent)

	user, err := h.describe(r.WithContext(ctx), p)
	if err != nil {
		httpx.InternalError(w, r, err)
		return
	}
	httpx.Success(w, r, user)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, ip string) {
	att, err := h.limiter.RecordAttempt(r.Context(), ip, ratelimit.ActionLogin)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to record login attempt")
		httpx.Unauthorized(w, r, msgBadCredentials)
		return
	}
	if att.Blocked {
		ratelimit.WriteBlocked(w, r, &ratelimit.RateLimited{
			Identifier: ip,
			Action:     ratelimit.ActionLogin,
			Remaining:  time.Duration(att.BlockSeconds) * time.Second,
		})
		return
	}
	httpx.WriteErrorWithDetails(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, msgBadCredentials,
		map[string]int{"attempts_remaining": att.AttemptsRemaining})
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := reqctx.FromContext(ctx)
	h.trail.Logout(ctx, rc.Actor)
	if err := h.sessions.Destroy(ctx, w, rc.SessionID); err != nil {
		httpx.InternalError(w, r, err)
		return
	}
	httpx.Success(w, r, map[string]bool{"logged_out": true})
}

// Me handles GET /api/v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.describe(r, reqctx.Actor(r.Context()))
	if err != nil {
		httpx.InternalError(w, r, err)
		return
	}
	httpx.Success(w, r, user)
}

func (h *Handler) describe(r *http.Request, p identity.Principal) (UserResponse, error) {
	role, err := h.engine.Role(r.Context(), p)
	if err != nil {
		return UserResponse{}, err
	}
	perms, err := h.engine.Permissions(r.Context(), p)
	if err != nil {
		return UserResponse{}, err
	}
	out := UserResponse{ID: p.ID, Username: p.Username, Email: p.Email, Permissions: perms}
	if ro, ok := role.Get(); ok {
		out.Role = ro.String()
		out.RoleName = ro.DisplayName()
	}
	return out, nil
}
