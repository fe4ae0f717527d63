// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	"errors"
	"fmt"

	"github.com/clinica-uss/clinicaguard/internal/identity"
)

var (
	// ErrUnauthenticated is returned when no principal is attached to the request.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden matches every *AuthorizationDenied via errors.Is.
	ErrForbidden = errors.New("forbidden")
)

// AuthorizationDenied is returned when an authenticated principal lacks a
// permission or object scope. The denial has already been audited.
type AuthorizationDenied struct {
	Principal  identity.Principal
	Permission Permission
	Target     string // "CAUSA 42" for object checks, empty otherwise
}

func (e *AuthorizationDenied) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s is not allowed %s on %s", e.Principal, e.Permission, e.Target)
	}
	return fmt.Sprintf("%s is not allowed %s", e.Principal, e.Permission)
}

// Is makes errors.Is(err, ErrForbidden) true for denials.
func (e *AuthorizationDenied) Is(target error) bool {
	return target == ErrForbidden
}
