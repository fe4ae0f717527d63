// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) []byte {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"ADMIN", RoleAdmin, true},
		{"estudiante", RoleStudent, true},
		{" secretaria ", RoleSecretary, true},
		{"ALUMNO", RoleStudent, true},
		{"abogado", RoleSupervisor, true},
		{"JUEZ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRoleOrNone(t *testing.T) {
	var zero RoleOrNone
	if !zero.IsNone() {
		t.Error("zero value should be no role")
	}
	if _, ok := zero.Get(); ok {
		t.Error("zero value Get should report false")
	}

	some := SomeRole(RoleDirector)
	if r, ok := some.Get(); !ok || r != RoleDirector {
		t.Errorf("SomeRole(DIRECTOR).Get() = (%q, %v)", r, ok)
	}
	if !some.Is(RoleDirector) || some.Is(RoleAdmin) {
		t.Error("Is() mismatch")
	}

	if !SomeRole(Role("JUEZ")).IsNone() {
		t.Error("unknown role should collapse to none")
	}
}

func TestRoleInternal(t *testing.T) {
	if RoleExternal.Internal() {
		t.Error("EXTERNO is not internal")
	}
	if !RoleSecretary.Internal() {
		t.Error("SECRETARIA is internal")
	}
	if Role("X").Internal() {
		t.Error("unknown role is not internal")
	}
}

func TestMemoryDirectoryAuthenticate(t *testing.T) {
	d := NewMemoryDirectory()
	if err := d.Add(User{
		Principal:    Principal{ID: "u1", Username: "mgonzalez"},
		PasswordHash: mustHash(t, "s3cret"),
		Role:         SomeRole(RoleStudent),
		Active:       true,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Add(User{
		Principal:    Principal{ID: "u2", Username: "inactive"},
		PasswordHash: mustHash(t, "pw"),
		Active:       false,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx := context.Background()

	p, err := d.Authenticate(ctx, "MGonzalez", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != "u1" {
		t.Errorf("principal id = %q, want u1", p.ID)
	}

	if _, err := d.Authenticate(ctx, "mgonzalez", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := d.Authenticate(ctx, "nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
	if _, err := d.Authenticate(ctx, "inactive", "pw"); !errors.Is(err, ErrInactive) {
		t.Errorf("inactive user err = %v", err)
	}
}

func TestMemoryDirectoryRoleReassignmentIsImmediate(t *testing.T) {
	d := NewMemoryDirectory()
	_ = d.Add(User{Principal: Principal{ID: "u1", Username: "a"}, Role: SomeRole(RoleStudent), Active: true})
	ctx := context.Background()

	a, err := d.Assignment(ctx, "u1")
	if err != nil || !a.Role.Is(RoleStudent) {
		t.Fatalf("Assignment = %+v, %v", a, err)
	}

	if err := d.SetRole("u1", SomeRole(RoleSupervisor)); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	a, _ = d.Assignment(ctx, "u1")
	if !a.Role.Is(RoleSupervisor) {
		t.Errorf("role after reassignment = %v, want SUPERVISOR", a.Role)
	}

	if _, err := d.Assignment(ctx, "missing"); !errors.Is(err, ErrUnknownPrincipal) {
		t.Errorf("missing principal err = %v", err)
	}
	if err := d.SetRole("missing", NoRole()); !errors.Is(err, ErrUnknownPrincipal) {
		t.Errorf("SetRole missing err = %v", err)
	}
}

func TestPrincipalAuthenticated(t *testing.T) {
	if Anonymous.Authenticated() {
		t.Error("anonymous must not be authenticated")
	}
	if Anonymous.String() != "anonymous" {
		t.Errorf("String() = %q", Anonymous.String())
	}
	p := Principal{ID: "7", Username: "rperez"}
	if !p.Authenticated() || p.String() != "rperez" {
		t.Errorf("principal %+v", p)
	}
}

func TestSQLDirectoryAssignment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT u.is_superuser, u.is_active, p.role").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"is_superuser", "is_active", "role"}).AddRow(false, true, "ALUMNO"))
	mock.ExpectQuery("SELECT u.is_superuser, u.is_active, p.role").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"is_superuser", "is_active", "role"}).AddRow(true, true, nil))
	mock.ExpectQuery("SELECT u.is_superuser, u.is_active, p.role").
		WithArgs("u3").
		WillReturnError(sql.ErrNoRows)

	d := NewSQLDirectory(db)
	ctx := context.Background()

	a, err := d.Assignment(ctx, "u1")
	if err != nil {
		t.Fatalf("Assignment u1: %v", err)
	}
	if !a.Role.Is(RoleStudent) || a.Superuser {
		t.Errorf("u1 assignment = %+v, want ESTUDIANTE via legacy alias", a)
	}

	a, err = d.Assignment(ctx, "u2")
	if err != nil {
		t.Fatalf("Assignment u2: %v", err)
	}
	if !a.Superuser || !a.Role.IsNone() {
		t.Errorf("u2 assignment = %+v, want superuser with no role", a)
	}

	if _, err := d.Assignment(ctx, "u3"); !errors.Is(err, ErrUnknownPrincipal) {
		t.Errorf("u3 err = %v, want ErrUnknownPrincipal", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLDirectoryAuthenticate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash := string(mustHash(t, "clave"))
	cols := []string{"id", "username", "email", "password_hash", "is_active"}
	mock.ExpectQuery("SELECT id, username, email, password_hash, is_active").
		WithArgs("secretaria1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "secretaria1", "s1@clinica.cl", hash, true))
	mock.ExpectQuery("SELECT id, username, email, password_hash, is_active").
		WithArgs("secretaria1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "secretaria1", "s1@clinica.cl", hash, true))

	d := NewSQLDirectory(db)

	p, err := d.Authenticate(context.Background(), "Secretaria1", "clave")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != "s1" || p.Email != "s1@clinica.cl" {
		t.Errorf("principal = %+v", p)
	}

	if _, err := d.Authenticate(context.Background(), "secretaria1", "otra"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
