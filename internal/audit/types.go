// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package audit records an append-only trail of who did what to which record.
//
// Entries are written synchronously by Trail.Record at the point of
// mutation. A failed write is logged on the fallback channel and swallowed:
// the business operation that triggered it is never rolled back or blocked
// by audit store availability.
//
// # Snapshots
//
// Updates carry a before and an after Snapshot: flat key/value projections of
// the entity's persisted fields with dates rendered as RFC 3339 strings and
// references rendered as their display string.
//
// # Stores
//
// Store is create-only. Nothing in this package updates or deletes an entry;
// retention purges happen out of band.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ActionKind is what happened.
type ActionKind string

const (
	ActionCreate         ActionKind = "CREAR"           // entity created
	ActionUpdate         ActionKind = "EDITAR"          // entity fields changed
	ActionDelete         ActionKind = "ELIMINAR"        // entity removed
	ActionUploadDocument ActionKind = "SUBIR_DOC"       // file attached to a case
	ActionLogin          ActionKind = "LOGIN"           // session started
	ActionLogout         ActionKind = "LOGOUT"          // session ended by the user
	ActionAccessDenied   ActionKind = "ACCESO_DENEGADO" // authorization refused
	ActionOther          ActionKind = "OTRO"
)

var actionKinds = map[ActionKind]bool{
	ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionUploadDocument: true,
	ActionLogin: true, ActionLogout: true, ActionAccessDenied: true, ActionOther: true,
}

// Valid reports whether a is a known action kind.
func (a ActionKind) Valid() bool { return actionKinds[a] }

// EntityKind is the type of record affected.
type EntityKind string

const (
	EntityCase       EntityKind = "CAUSA"
	EntityPerson     EntityKind = "PERSONA"
	EntityDocument   EntityKind = "DOCUMENTO"
	EntityHearing    EntityKind = "AUDIENCIA"
	EntityConsent    EntityKind = "CONSENTIMIENTO"
	EntityUser       EntityKind = "USUARIO"
	EntityPermission EntityKind = "PERMISO"
	EntityOther      EntityKind = "OTRO"
)

var entityKinds = map[EntityKind]bool{
	EntityCase: true, EntityPerson: true, EntityDocument: true, EntityHearing: true,
	EntityConsent: true, EntityUser: true, EntityPermission: true, EntityOther: true,
}

// Valid reports whether e is a known entity kind.
func (e EntityKind) Valid() bool { return entityKinds[e] }

const (
	// MaxLabelLength bounds Entry.Label.
	MaxLabelLength = 200

	// MaxUserAgentLength bounds Entry.UserAgent.
	MaxUserAgentLength = 500
)

// Actor identifies who performed the action. A nil *Actor on an entry means
// a system or anonymous event.
type Actor struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username,omitempty"`
}

// Entry is one immutable audit record.
type Entry struct {
	ID          string     `json:"id" validate:"required"`
	Timestamp   time.Time  `json:"timestamp" validate:"required"`
	Actor       *Actor     `json:"actor,omitempty"`
	Action      ActionKind `json:"action" validate:"required"`
	EntityKind  EntityKind `json:"entity_kind" validate:"required"`
	EntityID    string     `json:"entity_id,omitempty"`
	Label       string     `json:"label,omitempty" validate:"max=200"`
	Before      Snapshot   `json:"before,omitempty"`
	After       Snapshot   `json:"after,omitempty"`
	ClientIP    string     `json:"client_ip,omitempty" validate:"max=64"`
	UserAgent   string     `json:"user_agent,omitempty" validate:"max=500"`
	Description string     `json:"description,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`
}

// Store persists entries. Implementations must make Create all-or-nothing.
type Store interface {
	Create(ctx context.Context, e *Entry) (string, error)
}

// Reader is implemented by stores that can list what they hold.
type Reader interface {
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
	Count(ctx context.Context, f Filter) (int64, error)
}

// Filter narrows a listing. Zero fields do not filter.
type Filter struct {
	ActorID    string
	Action     ActionKind
	EntityKind EntityKind
	EntityID   string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// DefaultFilter returns a filter for the 100 most recent entries.
func DefaultFilter() Filter {
	return Filter{Limit: 100}
}

func (f Filter) matches(e *Entry) bool {
	if f.ActorID != "" && (e.Actor == nil || e.Actor.ID != f.ActorID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityKind != "" && e.EntityKind != f.EntityKind {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// ErrNotFound is returned by lookups for an unknown entry ID.
var ErrNotFound = errors.New("audit entry not found")

// WriteFailure wraps a failed persist. Trail logs it; callers of Record never
// see it.
type WriteFailure struct {
	EntryID string
	Action  ActionKind
	Err     error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("audit write failed for %s entry %s: %v", e.Action, e.EntryID, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }
