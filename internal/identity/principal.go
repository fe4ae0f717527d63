// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is returned when a username/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnknownPrincipal is returned when the directory has no such principal.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrInactive is returned for principals that exist but may not log in.
	ErrInactive = errors.New("principal is inactive")
)

// Principal is an identity as seen by the access-control core. The zero value
// is the anonymous principal.
type Principal struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{}

// Authenticated reports whether p identifies a logged-in user.
func (p Principal) Authenticated() bool {
	return p.ID != ""
}

func (p Principal) String() string {
	if !p.Authenticated() {
		return "anonymous"
	}
	if p.Username != "" {
		return p.Username
	}
	return p.ID
}

// Assignment is what the directory knows about a principal's privileges.
type Assignment struct {
	Superuser bool
	Role      RoleOrNone
}

// Directory is the external identity store.
type Directory interface {
	// Assignment returns the current superuser flag and role of a principal.
	// It is consulted on every decision, so role changes apply immediately.
	Assignment(ctx context.Context, principalID string) (Assignment, error)

	// Authenticate checks a username/password pair.
	Authenticate(ctx context.Context, username, password string) (Principal, error)
}
