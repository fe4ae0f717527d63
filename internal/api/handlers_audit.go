// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/logging"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 1000
	maxExportEntries     = 100000
)

// ListAudit handles GET /api/v1/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := parseAuditQuery(r, defaultAuditPageSize)
	if !validate(w, r, &q) {
		return
	}
	f := q.Filter()
	if f.Limit > maxAuditPageSize {
		f.Limit = maxAuditPageSize
	}

	entries, err := h.audit.List(ctx, f)
	if err != nil {
		httpx.InternalError(w, r, fmt.Errorf("list audit entries: %w", err))
		return
	}
	total, err := h.audit.Count(ctx, f)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to count audit entries")
		total = int64(f.Offset + len(entries))
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	httpx.SuccessWithPagination(w, r, entries, &httpx.Pagination{
		Total:   total,
		Count:   len(entries),
		Offset:  f.Offset,
		Limit:   f.Limit,
		HasMore: int64(f.Offset+len(entries)) < total,
	})
}

// GetAuditEntry handles GET /api/v1/audit/{id}.
func (h *Handler) GetAuditEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.audit.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, audit.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Audit entry not found")
	case err != nil:
		httpx.InternalError(w, r, err)
	default:
		httpx.Success(w, r, e)
	}
}

// ExportAudit handles GET /api/v1/audit/export. The export itself is
// recorded in the trail before streaming starts.
func (h *Handler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := parseAuditQuery(r, maxExportEntries)
	if !validate(w, r, &q) {
		return
	}
	format := audit.Format(q.Format)
	if format == "" {
		format = audit.FormatNDJSON
	}

	h.trail.Record(ctx, audit.Record{
		Action:      audit.ActionOther,
		EntityKind:  audit.EntityOther,
		Label:       "auditoria",
		Description: fmt.Sprintf("Exportación de auditoría (%s)", format),
	})

	name := fmt.Sprintf("auditoria-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	n, err := audit.Export(ctx, h.audit, q.Filter(), format, w)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int("written", n).Msg("Audit export aborted")
		return
	}
	logging.Ctx(ctx).Info().Int("entries", n).Str("format", string(format)).Msg("Audit export completed")
}

// RecordEvent handles POST /api/v1/audit/events. The caller's session is the
// actor. Snapshots are normalized the same way as in-process captures.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := h.trail.Record(r.Context(), audit.Record{
		Action:      audit.ActionKind(req.Action),
		EntityKind:  audit.EntityKind(req.EntityKind),
		EntityID:    req.EntityID,
		Label:       req.Label,
		Before:      audit.Project(req.Before),
		After:       audit.Project(req.After),
		Description: req.Description,
	})
	if !ok {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, httpx.CodeServiceUnavailable, "Audit entry could not be stored")
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Response{
		Success: true,
		Data:    map[string]string{"id": id},
		Meta:    &httpx.Meta{RequestID: logging.RequestIDFromContext(r.Context()), Timestamp: time.Now().UTC()},
	})
}
