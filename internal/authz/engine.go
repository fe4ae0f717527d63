// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/metrics"
)

// Auditor records refused authorizations. *audit.Trail implements it.
type Auditor interface {
	AccessDenied(ctx context.Context, p identity.Principal, permission, target string)
}

type nopAuditor struct{}

func (nopAuditor) AccessDenied(context.Context, identity.Principal, string, string) {}

// Engine answers permission and object-scope questions. Role assignments are
// read from the directory on every call, so a role change applies to the
// next check.
type Engine struct {
	matrix   *Matrix
	dir      identity.Directory
	parties  PartyResolver
	auditor  Auditor
	security *logging.SecurityLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPartyResolver sets how external parties are linked to objects.
// Without one, external users see nothing.
func WithPartyResolver(r PartyResolver) Option {
	return func(e *Engine) { e.parties = r }
}

// WithAuditor sets where denials are recorded.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithSecurityLogger replaces the security channel logger.
func WithSecurityLogger(l *logging.SecurityLogger) Option {
	return func(e *Engine) { e.security = l }
}

// NewEngine creates an Engine.
func NewEngine(matrix *Matrix, dir identity.Directory, opts ...Option) *Engine {
	e := &Engine{
		matrix:   matrix,
		dir:      dir,
		parties:  noParties{},
		auditor:  nopAuditor{},
		security: logging.Security(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Matrix returns the underlying permission matrix.
func (e *Engine) Matrix() *Matrix { return e.matrix }

// IsAuthenticated reports whether p identifies a logged-in user.
func (e *Engine) IsAuthenticated(p identity.Principal) bool {
	return p.Authenticated()
}

// assignment resolves p's current role. Unknown principals get the empty
// assignment.
func (e *Engine) assignment(ctx context.Context, p identity.Principal) (identity.Assignment, error) {
	a, err := e.dir.Assignment(ctx, p.ID)
	if errors.Is(err, identity.ErrUnknownPrincipal) {
		return identity.Assignment{}, nil
	}
	if err != nil {
		metrics.RecordAuthzError("directory")
		return identity.Assignment{}, fmt.Errorf("resolve role for %s: %w", p.ID, err)
	}
	return a, nil
}

func roleLabel(a identity.Assignment) string {
	if a.Superuser {
		return "superuser"
	}
	if r, ok := a.Role.Get(); ok {
		return string(r)
	}
	return ""
}

// Role returns p's current role assignment.
func (e *Engine) Role(ctx context.Context, p identity.Principal) (identity.RoleOrNone, error) {
	if !p.Authenticated() {
		return identity.NoRole(), nil
	}
	a, err := e.assignment(ctx, p)
	if err != nil {
		return identity.NoRole(), err
	}
	return a.Role, nil
}

// HasPermission reports whether p holds perm. Superusers hold every
// permission; roleless and anonymous principals hold none.
func (e *Engine) HasPermission(ctx context.Context, p identity.Principal, perm Permission) (bool, error) {
	if !p.Authenticated() {
		metrics.RecordAuthzDecision("permission", "", false)
		return false, nil
	}
	a, err := e.assignment(ctx, p)
	if err != nil {
		return false, err
	}
	allowed := e.granted(a, perm)
	metrics.RecordAuthzDecision("permission", roleLabel(a), allowed)
	return allowed, nil
}

func (e *Engine) granted(a identity.Assignment, perm Permission) bool {
	if a.Superuser {
		return true
	}
	role, ok := a.Role.Get()
	if !ok {
		return false
	}
	return e.matrix.HasCapability(role, perm)
}

// CanViewObject reports whether p may see obj.
func (e *Engine) CanViewObject(ctx context.Context, p identity.Principal, obj Object) (bool, error) {
	ok, _, err := e.decideObject(ctx, p, obj, opView)
	return ok, err
}

// CanEditObject reports whether p may change obj.
func (e *Engine) CanEditObject(ctx context.Context, p identity.Principal, obj Object) (bool, error) {
	ok, _, err := e.decideObject(ctx, p, obj, opEdit)
	return ok, err
}

// decideObject runs the coarse permission for the object's kind, then the
// role's scope policy. It also returns the permission a denial is reported
// under.
func (e *Engine) decideObject(ctx context.Context, p identity.Principal, obj Object, op operation) (bool, Permission, error) {
	check := op.String()
	perm := basePermission(obj, op, false)
	if !p.Authenticated() || obj == nil {
		metrics.RecordAuthzDecision(check, "", false)
		return false, perm, nil
	}

	a, err := e.assignment(ctx, p)
	if err != nil {
		return false, perm, err
	}
	label := roleLabel(a)

	if a.Superuser {
		metrics.RecordAuthzDecision(check, label, true)
		return true, perm, nil
	}
	role, ok := a.Role.Get()
	if !ok {
		metrics.RecordAuthzDecision(check, label, false)
		return false, perm, nil
	}

	perm = basePermission(obj, op, role == identity.RoleExternal)
	if perm == "" || !e.matrix.HasCapability(role, perm) {
		metrics.RecordAuthzDecision(check, label, false)
		return false, perm, nil
	}

	scope, ok := scopes[role]
	if !ok {
		metrics.RecordAuthzDecision(check, label, false)
		return false, perm, nil
	}
	allowed, err := scope(ctx, e.parties, p, obj, op)
	if err != nil {
		metrics.RecordAuthzError("scope")
		return false, perm, fmt.Errorf("%s scope for %s: %w", check, describe(obj), err)
	}
	metrics.RecordAuthzDecision(check, label, allowed)
	return allowed, perm, nil
}

// basePermission is the matrix permission an object check starts from.
// External parties view through the portal permission.
func basePermission(obj Object, op operation, external bool) Permission {
	if obj == nil {
		return ""
	}
	if external && op == opView {
		return PermAccessPortal
	}
	if op == opEdit {
		p, _ := EditPermission(obj.EntityKind())
		return p
	}
	p, _ := ViewPermission(obj.EntityKind())
	return p
}

// RequirePermission returns nil when p holds perm, ErrUnauthenticated for
// anonymous callers, or an audited *AuthorizationDenied.
func (e *Engine) RequirePermission(ctx context.Context, p identity.Principal, perm Permission) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	ok, err := e.HasPermission(ctx, p, perm)
	if err != nil {
		return err
	}
	if !ok {
		return e.deny(ctx, p, perm, "")
	}
	return nil
}

// RequireView is the object variant of RequirePermission for reads.
func (e *Engine) RequireView(ctx context.Context, p identity.Principal, obj Object) error {
	return e.requireObject(ctx, p, obj, opView)
}

// RequireEdit is the object variant of RequirePermission for writes.
func (e *Engine) RequireEdit(ctx context.Context, p identity.Principal, obj Object) error {
	return e.requireObject(ctx, p, obj, opEdit)
}

func (e *Engine) requireObject(ctx context.Context, p identity.Principal, obj Object, op operation) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	ok, perm, err := e.decideObject(ctx, p, obj, op)
	if err != nil {
		return err
	}
	if !ok {
		return e.deny(ctx, p, perm, describe(obj))
	}
	return nil
}

func (e *Engine) deny(ctx context.Context, p identity.Principal, perm Permission, target string) error {
	role, _ := e.Role(ctx, p) //nolint:errcheck // role is informational here
	e.security.LogAccessDenied(p.ID, p.Username, role.String(), string(perm), target)
	e.auditor.AccessDenied(ctx, p, string(perm), target)
	return &AuthorizationDenied{Principal: p, Permission: perm, Target: target}
}

// Permissions returns every known permission with whether p holds it.
// Anonymous and roleless principals get an empty map.
func (e *Engine) Permissions(ctx context.Context, p identity.Principal) (map[Permission]bool, error) {
	out := make(map[Permission]bool)
	if !p.Authenticated() {
		return out, nil
	}
	a, err := e.assignment(ctx, p)
	if err != nil {
		return nil, err
	}
	if !a.Superuser && a.Role.IsNone() {
		return out, nil
	}
	for _, perm := range AllPermissions {
		out[perm] = e.granted(a, perm)
	}
	return out, nil
}

// HasRole reports whether p is a superuser or holds one of roles.
func (e *Engine) HasRole(ctx context.Context, p identity.Principal, roles ...identity.Role) (bool, error) {
	if !p.Authenticated() {
		return false, nil
	}
	a, err := e.assignment(ctx, p)
	if err != nil {
		return false, err
	}
	if a.Superuser {
		return true, nil
	}
	for _, r := range roles {
		if a.Role.Is(r) {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports whether p is a superuser or an ADMIN.
func (e *Engine) IsAdmin(ctx context.Context, p identity.Principal) (bool, error) {
	return e.HasRole(ctx, p, identity.RoleAdmin)
}

// IsInternal reports whether p is clinic staff rather than an external party.
func (e *Engine) IsInternal(ctx context.Context, p identity.Principal) (bool, error) {
	internal := make([]identity.Role, 0, len(identity.Roles))
	for _, r := range identity.Roles {
		if r.Internal() {
			internal = append(internal, r)
		}
	}
	return e.HasRole(ctx, p, internal...)
}

// RequireRole restricts a section to the listed roles. Denials are audited
// under the pseudo-permission "rol:A|B".
func (e *Engine) RequireRole(ctx context.Context, p identity.Principal, roles ...identity.Role) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	ok, err := e.HasRole(ctx, p, roles...)
	if err != nil {
		return err
	}
	metrics.RecordAuthzDecision("role", "", ok)
	if !ok {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		return e.deny(ctx, p, Permission("rol:"+strings.Join(names, "|")), "")
	}
	return nil
}
