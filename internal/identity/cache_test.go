// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingDirectory struct {
	*MemoryDirectory
	lookups int
}

func (c *countingDirectory) Assignment(ctx context.Context, id string) (Assignment, error) {
	c.lookups++
	return c.MemoryDirectory.Assignment(ctx, id)
}

func newCachedFixture(t *testing.T, capacity int) (*CachedDirectory, *countingDirectory, *time.Time) {
	t.Helper()
	mem := NewMemoryDirectory()
	for _, u := range []User{
		{Principal: Principal{ID: "1", Username: "ana"}, PasswordHash: mustHash(t, "secreto"), Role: SomeRole(RoleStudent), Active: true},
		{Principal: Principal{ID: "2", Username: "beto"}, Role: SomeRole(RoleSupervisor), Active: true},
		{Principal: Principal{ID: "3", Username: "carla"}, Role: SomeRole(RoleSecretary), Active: true},
	} {
		if err := mem.Add(u); err != nil {
			t.Fatal(err)
		}
	}
	counting := &countingDirectory{MemoryDirectory: mem}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d := NewCachedDirectory(counting, time.Minute, capacity)
	d.now = func() time.Time { return now }
	return d, counting, &now
}

func TestCachedDirectoryTTL(t *testing.T) {
	d, counting, now := newCachedFixture(t, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, err := d.Assignment(ctx, "1")
		if err != nil || !a.Role.Is(RoleStudent) {
			t.Fatalf("Assignment() = %+v, %v", a, err)
		}
	}
	if counting.lookups != 1 {
		t.Fatalf("lookups = %d, want 1", counting.lookups)
	}

	if err := counting.SetRole("1", SomeRole(RoleSupervisor)); err != nil {
		t.Fatal(err)
	}
	if a, _ := d.Assignment(ctx, "1"); !a.Role.Is(RoleStudent) {
		t.Errorf("cached role = %v before expiry", a.Role)
	}

	*now = now.Add(61 * time.Second)
	if a, _ := d.Assignment(ctx, "1"); !a.Role.Is(RoleSupervisor) {
		t.Errorf("role after expiry = %v", a.Role)
	}
	if hits, misses, size := d.Stats(); hits != 3 || misses != 2 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d", hits, misses, size)
	}
}

func TestCachedDirectoryInvalidate(t *testing.T) {
	d, counting, _ := newCachedFixture(t, 10)
	ctx := context.Background()

	_, _ = d.Assignment(ctx, "1")
	_ = counting.SetRole("1", NoRole())
	d.Invalidate("1")
	if a, _ := d.Assignment(ctx, "1"); !a.Role.IsNone() {
		t.Errorf("role after Invalidate = %v", a.Role)
	}

	_, _ = d.Assignment(ctx, "1")
	if _, err := d.Authenticate(ctx, "ana", "secreto"); err != nil {
		t.Fatal(err)
	}
	before := counting.lookups
	_, _ = d.Assignment(ctx, "1")
	if counting.lookups != before+1 {
		t.Error("login did not refresh the cached assignment")
	}
}

func TestCachedDirectoryEvictsLeastRecentlyUsed(t *testing.T) {
	d, counting, _ := newCachedFixture(t, 2)
	ctx := context.Background()

	_, _ = d.Assignment(ctx, "1")
	_, _ = d.Assignment(ctx, "2")
	_, _ = d.Assignment(ctx, "1")
	_, _ = d.Assignment(ctx, "3") // evicts 2

	before := counting.lookups
	_, _ = d.Assignment(ctx, "1")
	if counting.lookups != before {
		t.Error("recently used entry was evicted")
	}
	_, _ = d.Assignment(ctx, "2")
	if counting.lookups != before+1 {
		t.Error("least recently used entry was kept")
	}
}

func TestCachedDirectoryDoesNotCacheErrors(t *testing.T) {
	d, counting, _ := newCachedFixture(t, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := d.Assignment(ctx, "404"); !errors.Is(err, ErrUnknownPrincipal) {
			t.Fatalf("Assignment(404) = %v", err)
		}
	}
	if counting.lookups != 2 {
		t.Errorf("lookups = %d, want 2", counting.lookups)
	}
}
