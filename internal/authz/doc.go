// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package authz decides what an authenticated principal may do.
//
// Decisions have two layers:
//
//	Request -> session middleware -> Engine.Require* -> handler -> audit
//	                                    |
//	                 Matrix (casbin)  +  per-role object scope
//
// # Permission Matrix
//
// Matrix is a flat role/permission table evaluated by casbin with this model:
//
//	[request_definition]
//	r = role, perm
//
//	[policy_definition]
//	p = role, perm
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = r.role == p.role && r.perm == p.perm
//
// There is no role hierarchy. The canonical policy is embedded from
// policy.csv; MatrixConfig.PolicyPath swaps in a file with the same format:
//
//	p, SUPERVISOR, puede_editar_causa
//	p, EXTERNO, puede_acceder_portal
//
// Rows naming unknown roles or permissions are rejected at load.
//
// # Object Scope
//
// CanViewObject and CanEditObject first require the coarse permission for the
// object's entity kind (puede_ver_causas, puede_editar_causa, ...), then apply
// the role's scope:
//
//	ADMIN, DIRECTOR, SECRETARIA  any object
//	SUPERVISOR                   view any, edit when responsible or supervisor
//	ESTUDIANTE                   view and edit when responsible
//	EXTERNO                      view when linked as a party, never edit
//
// Cases, documents and hearings are owned: one without an Owned implementation
// or with empty IDs belongs to nobody. Supervisors may view it but not edit
// it, and students cannot reach it. Persons and consents are governed by the
// coarse permission alone. External users always need a PartyResolver link.
//
// # Denials
//
// The Require* methods return ErrUnauthenticated for anonymous callers
// (nothing is audited) and *AuthorizationDenied otherwise, after writing one
// ACCESO_DENEGADO entry through the configured Auditor and a line on the
// security log.
package authz
