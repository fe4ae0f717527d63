// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/ratelimit"
	"github.com/clinica-uss/clinicaguard/internal/session"
	"github.com/clinica-uss/clinicaguard/internal/validation"
)

const maxBodyBytes = 1 << 20

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the handlers need. All fields except
// HealthChecks are required.
type Deps struct {
	Directory    identity.Directory
	Engine       *authz.Engine
	Limiter      *ratelimit.Limiter
	Sessions     *session.Middleware
	Trail        *audit.Trail
	AuditReader  audit.Reader
	Security     *logging.SecurityLogger
	HealthChecks map[string]HealthCheck
}

// Handler serves the API.
type Handler struct {
	directory identity.Directory
	engine    *authz.Engine
	limiter   *ratelimit.Limiter
	sessions  *session.Middleware
	trail     *audit.Trail
	audit     audit.Reader
	security  *logging.SecurityLogger
	checks    map[string]HealthCheck
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	sec := d.Security
	if sec == nil {
		sec = logging.Security()
	}
	return &Handler{
		directory: d.Directory,
		engine:    d.Engine,
		limiter:   d.Limiter,
		sessions:  d.Sessions,
		trail:     d.Trail,
		audit:     d.AuditReader,
		security:  sec,
		checks:    d.HealthChecks,
		startTime: time.Now(),
	}
}

// decode reads a JSON body into v and validates it. It writes the error
// response and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "Request body must be valid JSON")
		return false
	}
	return validate(w, r, v)
}

func validate(w http.ResponseWriter, r *http.Request, v any) bool {
	err := validation.Struct(v)
	if err == nil {
		return true
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		httpx.WriteErrorWithDetails(w, r, http.StatusBadRequest, httpx.CodeValidationFailed, verr.Error(), verr.Details())
		return false
	}
	httpx.InternalError(w, r, err)
	return false
}
