// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	"context"

	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/identity"
)

type operation int

const (
	opView operation = iota
	opEdit
)

func (o operation) String() string {
	if o == opEdit {
		return "edit"
	}
	return "view"
}

// scopePolicy decides object scope once the coarse permission has passed.
type scopePolicy func(ctx context.Context, parties PartyResolver, p identity.Principal, obj Object, op operation) (bool, error)

// scopes is the per-role object policy. A role missing here is denied.
var scopes = map[identity.Role]scopePolicy{
	identity.RoleAdmin:      globalScope,
	identity.RoleDirector:   globalScope,
	identity.RoleSecretary:  globalScope,
	identity.RoleSupervisor: supervisorScope,
	identity.RoleStudent:    studentScope,
	identity.RoleExternal:   externalScope,
}

func globalScope(context.Context, PartyResolver, identity.Principal, Object, operation) (bool, error) {
	return true, nil
}

// ownershipScoped lists the kinds whose scope follows the owning case. An
// object of these kinds without ownership data belongs to nobody.
var ownershipScoped = map[audit.EntityKind]bool{
	audit.EntityCase:     true,
	audit.EntityDocument: true,
	audit.EntityHearing:  true,
}

// owners returns the responsible and supervisor of obj. scoped is false when
// the kind is governed by the coarse permission alone.
func owners(obj Object) (responsible, supervisor string, scoped bool) {
	if !ownershipScoped[obj.EntityKind()] {
		return "", "", false
	}
	if owned, ok := obj.(Owned); ok {
		return owned.ResponsibleID(), owned.SupervisorID(), true
	}
	return "", "", true
}

// Supervisors see every record and edit the ones they are responsible for
// or supervise.
func supervisorScope(_ context.Context, _ PartyResolver, p identity.Principal, obj Object, op operation) (bool, error) {
	if op == opView {
		return true, nil
	}
	responsible, supervisor, scoped := owners(obj)
	if !scoped {
		return true, nil
	}
	return principalIs(p, responsible) || principalIs(p, supervisor), nil
}

// Students only reach records they are responsible for.
func studentScope(_ context.Context, _ PartyResolver, p identity.Principal, obj Object, _ operation) (bool, error) {
	responsible, _, scoped := owners(obj)
	if !scoped {
		return true, nil
	}
	return principalIs(p, responsible), nil
}

// External parties read what they are linked to and never edit.
func externalScope(ctx context.Context, parties PartyResolver, p identity.Principal, obj Object, op operation) (bool, error) {
	if op == opEdit {
		return false, nil
	}
	return parties.IsParty(ctx, p.ID, obj)
}
