// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"net/http"

	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

type objectRef struct {
	kind  audit.EntityKind
	id    string
	label string
}

func (o objectRef) EntityKind() audit.EntityKind { return o.kind }
func (o objectRef) ObjectID() string             { return o.id }
func (o objectRef) Label() string                { return o.label }

type ownedRef struct {
	objectRef
	responsible string
	supervisor  string
}

func (o ownedRef) ResponsibleID() string { return o.responsible }
func (o ownedRef) SupervisorID() string  { return o.supervisor }

// object always carries ownership; empty IDs mean nobody owns the record.
func (r *ObjectRef) object() authz.Object {
	return ownedRef{
		objectRef:   objectRef{kind: audit.EntityKind(r.Kind), id: r.ID, label: r.Label},
		responsible: r.ResponsibleID,
		supervisor:  r.SupervisorID,
	}
}

// CheckResponse is the decision for POST /authz/check.
type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

// Check handles POST /api/v1/authz/check for the calling principal.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	actor := reqctx.Actor(ctx)

	if req.Object == nil {
		perm := authz.Permission(req.Permission)
		if !authz.Known(perm) {
			httpx.WriteErrorWithDetails(w, r, http.StatusBadRequest, httpx.CodeValidationFailed,
				"Unknown permission", map[string]string{"permission": req.Permission})
			return
		}
		if req.Enforce {
			h.respondDecision(w, r, h.engine.RequirePermission(ctx, actor, perm))
			return
		}
		ok, err := h.engine.HasPermission(ctx, actor, perm)
		h.respondAllowed(w, r, ok, err)
		return
	}

	obj := req.Object.object()
	edit := req.Operation == "edit"
	switch {
	case req.Enforce && edit:
		h.respondDecision(w, r, h.engine.RequireEdit(ctx, actor, obj))
	case req.Enforce:
		h.respondDecision(w, r, h.engine.RequireView(ctx, actor, obj))
	case edit:
		ok, err := h.engine.CanEditObject(ctx, actor, obj)
		h.respondAllowed(w, r, ok, err)
	default:
		ok, err := h.engine.CanViewObject(ctx, actor, obj)
		h.respondAllowed(w, r, ok, err)
	}
}

func (h *Handler) respondAllowed(w http.ResponseWriter, r *http.Request, ok bool, err error) {
	if err != nil {
		httpx.InternalError(w, r, err)
		return
	}
	httpx.Success(w, r, CheckResponse{Allowed: ok})
}

// respondDecision answers an enforced check: 403 with the permission on
// denial, allowed=true otherwise.
func (h *Handler) respondDecision(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		authz.WriteError(w, r, err)
		return
	}
	httpx.Success(w, r, CheckResponse{Allowed: true})
}
