// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package identity defines principals, roles and the directory that assigns
// roles to principals.
package identity

import "strings"

// Role is one of the fixed clinic roles.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleDirector   Role = "DIRECTOR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleStudent    Role = "ESTUDIANTE"
	RoleSecretary  Role = "SECRETARIA"
	RoleExternal   Role = "EXTERNO"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleAdmin, RoleDirector, RoleSupervisor, RoleStudent, RoleSecretary, RoleExternal}

var roleNames = map[Role]string{
	RoleAdmin:      "Administrador",
	RoleDirector:   "Director/a Clínica",
	RoleSupervisor: "Abogado/a Supervisor/a",
	RoleStudent:    "Estudiante/Clínico",
	RoleSecretary:  "Secretaría/Apoyo",
	RoleExternal:   "Persona Atendida (externo)",
}

// legacyAliases maps role names from older profile records.
var legacyAliases = map[string]Role{
	"ALUMNO":  RoleStudent,
	"ABOGADO": RoleSupervisor,
}

// ParseRole normalizes s (case-insensitive, legacy aliases applied) to a Role.
func ParseRole(s string) (Role, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if r, ok := legacyAliases[name]; ok {
		return r, true
	}
	r := Role(name)
	if _, ok := roleNames[r]; ok {
		return r, true
	}
	return "", false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// DisplayName returns the human-readable role name.
func (r Role) DisplayName() string {
	return roleNames[r]
}

// Internal reports whether r belongs to clinic staff, as opposed to an
// external person attended by the clinic.
func (r Role) Internal() bool {
	return r.Valid() && r != RoleExternal
}

func (r Role) String() string { return string(r) }

// RoleOrNone is an optional role assignment. The zero value is "no role".
type RoleOrNone struct {
	role Role
	ok   bool
}

// SomeRole returns an assigned role. Unknown roles collapse to NoRole.
func SomeRole(r Role) RoleOrNone {
	if !r.Valid() {
		return RoleOrNone{}
	}
	return RoleOrNone{role: r, ok: true}
}

// NoRole returns the empty assignment.
func NoRole() RoleOrNone { return RoleOrNone{} }

// Get returns the role and whether one is assigned.
func (o RoleOrNone) Get() (Role, bool) { return o.role, o.ok }

// IsNone reports whether no role is assigned.
func (o RoleOrNone) IsNone() bool { return !o.ok }

// Is reports whether the assigned role is r.
func (o RoleOrNone) Is(r Role) bool { return o.ok && o.role == r }

func (o RoleOrNone) String() string {
	if !o.ok {
		return ""
	}
	return string(o.role)
}
