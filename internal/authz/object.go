// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/identity"
)

// Object is a domain record subject to object-level checks.
type Object = audit.Object

// Owned is implemented by objects that record who is responsible for them.
// Empty IDs mean "nobody".
type Owned interface {
	ResponsibleID() string
	SupervisorID() string
}

// PartyResolver answers whether an external principal is linked to an object
// as a party (client, counterpart, witness).
type PartyResolver interface {
	IsParty(ctx context.Context, principalID string, obj Object) (bool, error)
}

// coarse maps an entity kind to the matrix permission gating view and edit.
var coarse = map[audit.EntityKind]struct{ view, edit Permission }{
	audit.EntityCase:     {PermViewCases, PermEditCase},
	audit.EntityPerson:   {PermViewPersons, PermEditPerson},
	audit.EntityDocument: {PermViewDocuments, PermEditDocument},
	audit.EntityHearing:  {PermViewHearings, PermEditHearing},
	audit.EntityConsent:  {PermViewConsents, PermManageConsents},
}

// ViewPermission returns the permission that gates viewing objects of kind k.
func ViewPermission(k audit.EntityKind) (Permission, bool) {
	c, ok := coarse[k]
	return c.view, ok
}

// EditPermission returns the permission that gates editing objects of kind k.
func EditPermission(k audit.EntityKind) (Permission, bool) {
	c, ok := coarse[k]
	return c.edit, ok
}

func describe(obj Object) string {
	if obj == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", obj.EntityKind(), obj.ObjectID())
}

type partyKey struct {
	principal string
	kind      audit.EntityKind
	object    string
}

// MemoryPartyResolver is an in-process party link table.
type MemoryPartyResolver struct {
	mu    sync.RWMutex
	links map[partyKey]bool
}

// NewMemoryPartyResolver creates an empty resolver.
func NewMemoryPartyResolver() *MemoryPartyResolver {
	return &MemoryPartyResolver{links: make(map[partyKey]bool)}
}

// Link records principalID as a party of the object.
func (r *MemoryPartyResolver) Link(principalID string, kind audit.EntityKind, objectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[partyKey{principalID, kind, objectID}] = true
}

// Unlink removes a link.
func (r *MemoryPartyResolver) Unlink(principalID string, kind audit.EntityKind, objectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, partyKey{principalID, kind, objectID})
}

// IsParty implements PartyResolver.
func (r *MemoryPartyResolver) IsParty(_ context.Context, principalID string, obj Object) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.links[partyKey{principalID, obj.EntityKind(), obj.ObjectID()}], nil
}

// SQLPartyResolver links external users to cases through the person record
// that shares their e-mail address. Non-case objects are never linked.
type SQLPartyResolver struct {
	db *sql.DB
}

// NewSQLPartyResolver creates a resolver over the clinic database.
func NewSQLPartyResolver(db *sql.DB) *SQLPartyResolver {
	return &SQLPartyResolver{db: db}
}

const partyQuery = `SELECT EXISTS (
	SELECT 1
	FROM users u
	JOIN personas p ON lower(p.email) = lower(u.email)
	JOIN causa_personas cp ON cp.persona_id = p.id
	WHERE u.id = $1 AND cp.causa_id = $2
)`

// IsParty implements PartyResolver.
func (r *SQLPartyResolver) IsParty(ctx context.Context, principalID string, obj Object) (bool, error) {
	if obj.EntityKind() != audit.EntityCase {
		return false, nil
	}
	var linked bool
	if err := r.db.QueryRowContext(ctx, partyQuery, principalID, obj.ObjectID()).Scan(&linked); err != nil {
		return false, fmt.Errorf("query party link: %w", err)
	}
	return linked, nil
}

// noParties denies every link.
type noParties struct{}

func (noParties) IsParty(context.Context, string, Object) (bool, error) { return false, nil }

var _ PartyResolver = noParties{}

// principalIs reports whether id is non-empty and equals p's ID.
func principalIs(p identity.Principal, id string) bool {
	return id != "" && id == p.ID
}
