// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/audit"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=256"`
}

// AuditQuery holds the query parameters of GET /audit and /audit/export.
type AuditQuery struct {
	ActorID    string `json:"actor_id" validate:"omitempty,max=64"`
	Action     string `json:"action" validate:"omitempty,oneof=CREAR EDITAR ELIMINAR SUBIR_DOC LOGIN LOGOUT ACCESO_DENEGADO OTRO"`
	EntityKind string `json:"entity_kind" validate:"omitempty,oneof=CAUSA PERSONA DOCUMENTO AUDIENCIA CONSENTIMIENTO USUARIO PERMISO OTRO"`
	EntityID   string `json:"entity_id" validate:"omitempty,max=64"`
	Since      string `json:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Until      string `json:"until" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit      int    `json:"limit" validate:"min=1,max=100000"`
	Offset     int    `json:"offset" validate:"min=0"`
	Format     string `json:"format" validate:"omitempty,oneof=ndjson cef"`
}

func parseAuditQuery(r *http.Request, defaultLimit int) AuditQuery {
	q := r.URL.Query()
	return AuditQuery{
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
		EntityKind: q.Get("entity_kind"),
		EntityID:   q.Get("entity_id"),
		Since:      q.Get("since"),
		Until:      q.Get("until"),
		Limit:      intParam(r, "limit", defaultLimit),
		Offset:     intParam(r, "offset", 0),
		Format:     q.Get("format"),
	}
}

// Filter converts a validated query.
func (q AuditQuery) Filter() audit.Filter {
	f := audit.Filter{
		ActorID:    q.ActorID,
		Action:     audit.ActionKind(q.Action),
		EntityKind: audit.EntityKind(q.EntityKind),
		EntityID:   q.EntityID,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if t, err := time.Parse(time.RFC3339, q.Since); err == nil {
		f.Since = t
	}
	if t, err := time.Parse(time.RFC3339, q.Until); err == nil {
		f.Until = t
	}
	return f
}

// RecordRequest is the body of POST /audit/events. Session and
// authorization events are recorded by this service itself and cannot be
// submitted.
type RecordRequest struct {
	Action      string         `json:"action" validate:"required,oneof=CREAR EDITAR ELIMINAR SUBIR_DOC OTRO"`
	EntityKind  string         `json:"entity_kind" validate:"required,oneof=CAUSA PERSONA DOCUMENTO AUDIENCIA CONSENTIMIENTO OTRO"`
	EntityID    string         `json:"entity_id" validate:"omitempty,max=64"`
	Label       string         `json:"label"`
	Before      map[string]any `json:"before"`
	After       map[string]any `json:"after"`
	Description string         `json:"description" validate:"max=2000"`
}

// ObjectRef names a domain record for an object-level check. Owner fields
// are optional; when both are empty the record is treated as carrying no
// ownership information.
type ObjectRef struct {
	Kind          string `json:"kind" validate:"required,oneof=CAUSA PERSONA DOCUMENTO AUDIENCIA CONSENTIMIENTO"`
	ID            string `json:"id" validate:"required,max=64"`
	Label         string `json:"label" validate:"max=200"`
	ResponsibleID string `json:"responsible_id" validate:"max=64"`
	SupervisorID  string `json:"supervisor_id" validate:"max=64"`
}

// CheckRequest is the body of POST /authz/check. Exactly one of Permission
// or Object is expected. Enforce makes a denial audited and answered with
// 403 instead of allowed=false.
type CheckRequest struct {
	Permission string     `json:"permission" validate:"required_without=Object,excluded_with=Object"`
	Object     *ObjectRef `json:"object"`
	Operation  string     `json:"operation" validate:"omitempty,oneof=view edit"`
	Enforce    bool       `json:"enforce"`
}

func intParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
