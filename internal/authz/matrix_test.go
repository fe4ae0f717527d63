// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/clinica-uss/clinicaguard/internal/identity"
)

func newTestMatrix(t *testing.T) *Matrix {
	t.Helper()
	m, err := NewMatrix(MatrixConfig{})
	if err != nil {
		t.Fatalf("NewMatrix() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestMatrixCanonicalRows(t *testing.T) {
	m := newTestMatrix(t)

	tests := []struct {
		role identity.Role
		perm Permission
		want bool
	}{
		{identity.RoleAdmin, PermCreateCase, true},
		{identity.RoleSupervisor, PermCreateCase, true},
		{identity.RoleStudent, PermCreateCase, true},
		{identity.RoleDirector, PermCreateCase, false},
		{identity.RoleSecretary, PermCreateCase, false},
		{identity.RoleExternal, PermCreateCase, false},

		{identity.RoleAdmin, PermDeleteCase, true},
		{identity.RoleDirector, PermDeleteCase, false},
		{identity.RoleSupervisor, PermDeleteCase, false},
		{identity.RoleSecretary, PermDeleteCase, false},

		{identity.RoleDirector, PermReassignCase, true},
		{identity.RoleDirector, PermViewAudit, true},
		{identity.RoleDirector, PermViewAdminPanel, true},
		{identity.RoleDirector, PermManageUsers, false},
		{identity.RoleSupervisor, PermViewConfidentialDocuments, true},
		{identity.RoleStudent, PermViewConfidentialDocuments, false},
		{identity.RoleSecretary, PermCreatePerson, true},
		{identity.RoleSecretary, PermManageConsents, true},
		{identity.RoleStudent, PermViewReports, false},

		{identity.RoleExternal, PermAccessPortal, true},
		{identity.RoleExternal, PermViewCases, false},
		{identity.RoleAdmin, PermAccessPortal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := m.HasCapability(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasCapability(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestMatrixIsDeterministic(t *testing.T) {
	a := newTestMatrix(t)
	b := newTestMatrix(t)
	for _, role := range identity.Roles {
		for _, perm := range AllPermissions {
			first := a.HasCapability(role, perm)
			for i := 0; i < 5; i++ {
				if a.HasCapability(role, perm) != first || b.HasCapability(role, perm) != first {
					t.Fatalf("HasCapability(%s, %s) is not stable", role, perm)
				}
			}
		}
	}
}

func TestMatrixFailsClosed(t *testing.T) {
	m := newTestMatrix(t)
	if m.HasCapability(identity.RoleAdmin, "puede_volar") {
		t.Error("unknown permission granted")
	}
	if m.HasCapability(identity.Role("ALUMNO"), PermViewCases) {
		t.Error("unnormalized role granted")
	}
	if m.HasCapability("", PermViewCases) {
		t.Error("empty role granted")
	}
}

func TestMatrixPermissions(t *testing.T) {
	m := newTestMatrix(t)
	want := []Permission{
		PermAccessPortal,
		PermUploadPortalDocument,
		PermViewConsents,
		PermViewSharedDocuments,
		PermViewReminders,
	}
	if got := m.Permissions(identity.RoleExternal); !reflect.DeepEqual(got, want) {
		t.Errorf("Permissions(EXTERNO) = %v, want %v", got, want)
	}
	if n := len(m.Permissions(identity.RoleAdmin)); n != 30 {
		t.Errorf("ADMIN has %d permissions, want 30", n)
	}
}

func TestMatrixPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(path, []byte("p, SECRETARIA, puede_eliminar_causa\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := NewMatrix(MatrixConfig{PolicyPath: path})
	if err != nil {
		t.Fatalf("NewMatrix() error = %v", err)
	}
	defer m.Close()

	if !m.HasCapability(identity.RoleSecretary, PermDeleteCase) {
		t.Error("file policy not applied")
	}
	if m.HasCapability(identity.RoleAdmin, PermDeleteCase) {
		t.Error("embedded policy leaked into file policy")
	}

	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("p, JUEZ, puede_ver_causas\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMatrix(MatrixConfig{PolicyPath: bad}); err == nil {
		t.Error("policy with unknown role accepted")
	}
	if _, err := NewMatrix(MatrixConfig{PolicyPath: filepath.Join(dir, "missing.csv")}); err == nil {
		t.Error("missing policy file accepted")
	}
}

func TestLoadPolicyRejectsMalformedLines(t *testing.T) {
	m := newTestMatrix(t)
	if err := loadPolicy(m.enforcer, "p, ADMIN\n"); err == nil {
		t.Error("two-field line accepted")
	}
	if err := loadPolicy(m.enforcer, "# comment\n\n"); err != nil {
		t.Errorf("comment-only policy error = %v", err)
	}
}
