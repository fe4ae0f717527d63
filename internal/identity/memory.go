// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when a username is unknown so that unknown
// and known usernames take the same time to reject.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3PXxVw.yx4xFy6mcqpXKe2a")

// User is a directory record.
type User struct {
	Principal
	PasswordHash []byte
	Superuser    bool
	Role         RoleOrNone
	Active       bool
}

// MemoryDirectory is an in-process Directory, seeded from configuration.
type MemoryDirectory struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]*User
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
	}
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Add inserts or replaces a user.
func (d *MemoryDirectory) Add(u User) error {
	if u.ID == "" || u.Username == "" {
		return fmt.Errorf("user id and username are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	stored := u
	stored.PasswordHash = append([]byte(nil), u.PasswordHash...)
	if old, ok := d.byID[u.ID]; ok {
		delete(d.byUsername, strings.ToLower(old.Username))
	}
	d.byID[u.ID] = &stored
	d.byUsername[strings.ToLower(u.Username)] = &stored
	return nil
}

// SetRole reassigns the role of a principal. It applies on the next check.
func (d *MemoryDirectory) SetRole(principalID string, role RoleOrNone) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[principalID]
	if !ok {
		return ErrUnknownPrincipal
	}
	u.Role = role
	return nil
}

// Assignment implements Directory.
func (d *MemoryDirectory) Assignment(_ context.Context, principalID string) (Assignment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[principalID]
	if !ok {
		return Assignment{}, ErrUnknownPrincipal
	}
	if !u.Active {
		return Assignment{}, nil
	}
	return Assignment{Superuser: u.Superuser, Role: u.Role}, nil
}

// Authenticate implements Directory.
func (d *MemoryDirectory) Authenticate(_ context.Context, username, password string) (Principal, error) {
	d.mu.RLock()
	u, ok := d.byUsername[strings.ToLower(strings.TrimSpace(username))]
	var (
		hash      []byte
		active    bool
		principal Principal
	)
	if ok {
		hash, active, principal = u.PasswordHash, u.Active, u.Principal
	}
	d.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if !active {
		return Principal{}, ErrInactive
	}
	return principal, nil
}

// Lookup returns a copy of the user record.
func (d *MemoryDirectory) Lookup(principalID string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[principalID]
	if !ok {
		return User{}, false
	}
	return *u, true
}
