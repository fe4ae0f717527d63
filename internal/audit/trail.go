// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/metrics"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
	"github.com/clinica-uss/clinicaguard/internal/validation"
)

// Object is an auditable domain record.
type Object interface {
	EntityKind() EntityKind
	ObjectID() string
	Label() string
}

// Auditable is an Object that can be snapshotted.
type Auditable interface {
	Object
	Snapshotter
}

// Record is the input to Trail.Record. Zero Actor, ClientIP and UserAgent are
// filled from the request context.
type Record struct {
	Actor       identity.Principal
	Action      ActionKind
	EntityKind  EntityKind
	EntityID    string
	Label       string
	Before      Snapshot
	After       Snapshot
	Description string
}

// Config configures a Trail.
type Config struct {
	// WriteTimeout bounds one store write. The write is detached from the
	// request's cancellation so a client disconnect cannot drop the entry.
	// Default: 5s
	WriteTimeout time.Duration
}

// DefaultConfig returns the default trail configuration.
func DefaultConfig() Config {
	return Config{WriteTimeout: 5 * time.Second}
}

// Trail is the append-only audit recorder.
type Trail struct {
	store    Store
	cfg      Config
	fallback zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) { t.now = now }
}

// WithFallbackLogger replaces the logger that receives entries which could
// not be persisted.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithFallbackLogger(l zerolog.Logger) Option {
	return func(t *Trail) { t.fallback = l }
}

// NewTrail creates a Trail writing to store.
func NewTrail(store Store, cfg Config, opts ...Option) *Trail {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	t := &Trail{
		store:    store,
		cfg:      cfg,
		fallback: logging.WithComponent("audit_fallback"),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record persists one entry and returns its ID. ok is false when the entry
// could not be persisted; the failure has already been logged.
func (t *Trail) Record(ctx context.Context, r Record) (id string, ok bool) {
	e := t.build(ctx, r)

	if err := validation.Struct(e); err != nil {
		t.fail(ctx, e, "invalid", err)
		return "", false
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	id, err := t.store.Create(writeCtx, e)
	if err != nil {
		t.fail(ctx, e, "store", err)
		return "", false
	}
	metrics.RecordAuditWrite(string(e.Action), time.Since(start))
	return id, true
}

func (t *Trail) build(ctx context.Context, r Record) *Entry {
	rc := reqctx.FromContext(ctx)

	actor := r.Actor
	if !actor.Authenticated() {
		actor = rc.Actor
	}

	e := &Entry{
		ID:          t.newID(),
		Timestamp:   t.now().UTC(),
		Action:      r.Action,
		EntityKind:  r.EntityKind,
		EntityID:    r.EntityID,
		Label:       truncateRunes(r.Label, MaxLabelLength),
		Before:      r.Before.Clone(),
		After:       r.After.Clone(),
		ClientIP:    rc.ClientIP,
		UserAgent:   truncateRunes(rc.UserAgent, MaxUserAgentLength),
		Description: r.Description,
		RequestID:   rc.RequestID,
	}
	if actor.Authenticated() {
		e.Actor = &Actor{ID: actor.ID, Username: actor.Username}
	}
	if e.Description == "" {
		e.Description = defaultDescription(e.Action, e.EntityKind, e.Label)
	}
	return e
}

// fail writes e to the fallback channel. The full entry is logged so it can
// be replayed from the log stream.
func (t *Trail) fail(ctx context.Context, e *Entry, reason string, err error) {
	metrics.RecordAuditFailure(reason)
	wf := &WriteFailure{EntryID: e.ID, Action: e.Action, Err: err}
	t.fallback.Error().
		Err(wf).
		Str("reason", reason).
		Str("request_id", logging.RequestIDFromContext(ctx)).
		Interface("entry", e).
		Msg("Audit entry not persisted")
}

// Created records the creation of obj with its initial state as the after snapshot.
func (t *Trail) Created(ctx context.Context, obj Auditable, description string) (string, bool) {
	return t.Record(ctx, Record{
		Action:      ActionCreate,
		EntityKind:  obj.EntityKind(),
		EntityID:    obj.ObjectID(),
		Label:       obj.Label(),
		After:       Capture(obj),
		Description: description,
	})
}

// Updated snapshots obj, runs mutate, snapshots obj again and records one
// EDITAR entry. When mutate fails nothing is recorded and its error is
// returned unchanged.
func (t *Trail) Updated(ctx context.Context, obj Auditable, description string, mutate func(context.Context) error) error {
	before := Capture(obj)
	if err := mutate(ctx); err != nil {
		return err
	}
	t.Record(ctx, Record{
		Action:      ActionUpdate,
		EntityKind:  obj.EntityKind(),
		EntityID:    obj.ObjectID(),
		Label:       obj.Label(),
		Before:      before,
		After:       Capture(obj),
		Description: description,
	})
	return nil
}

// Deleted records the removal of obj with its last state as the before snapshot.
func (t *Trail) Deleted(ctx context.Context, obj Auditable, description string) (string, bool) {
	return t.Record(ctx, Record{
		Action:      ActionDelete,
		EntityKind:  obj.EntityKind(),
		EntityID:    obj.ObjectID(),
		Label:       obj.Label(),
		Before:      Capture(obj),
		Description: description,
	})
}

// DocumentUploaded records a file attached to a record.
func (t *Trail) DocumentUploaded(ctx context.Context, doc Auditable, description string) (string, bool) {
	return t.Record(ctx, Record{
		Action:      ActionUploadDocument,
		EntityKind:  EntityDocument,
		EntityID:    doc.ObjectID(),
		Label:       doc.Label(),
		After:       Capture(doc),
		Description: description,
	})
}

// Login records a successful login of p.
func (t *Trail) Login(ctx context.Context, p identity.Principal) (string, bool) {
	return t.Record(ctx, Record{
		Actor:       p,
		Action:      ActionLogin,
		EntityKind:  EntityUser,
		EntityID:    p.ID,
		Label:       p.Username,
		Description: fmt.Sprintf("Inicio de sesión: %s", p.Username),
	})
}

// Logout records p ending their session.
func (t *Trail) Logout(ctx context.Context, p identity.Principal) (string, bool) {
	return t.Record(ctx, Record{
		Actor:       p,
		Action:      ActionLogout,
		EntityKind:  EntityUser,
		EntityID:    p.ID,
		Label:       p.Username,
		Description: fmt.Sprintf("Cierre de sesión: %s", p.Username),
	})
}

// AccessDenied records a refused authorization of p for permission. target
// names the object or view involved and may be empty.
func (t *Trail) AccessDenied(ctx context.Context, p identity.Principal, permission, target string) {
	desc := fmt.Sprintf("Acceso denegado: permiso %q", permission)
	if target != "" {
		desc += fmt.Sprintf(" sobre %s", target)
	}
	t.Record(ctx, Record{
		Actor:       p,
		Action:      ActionAccessDenied,
		EntityKind:  EntityPermission,
		EntityID:    permission,
		Label:       permission,
		Description: desc,
	})
}

func defaultDescription(a ActionKind, k EntityKind, label string) string {
	if label == "" {
		return fmt.Sprintf("%s %s", a, k)
	}
	return fmt.Sprintf("%s %s: %s", a, k, label)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
