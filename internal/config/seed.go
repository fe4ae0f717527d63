// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/validation"
)

// SeedUser is one entry of the directory seed file:
//
//	users:
//	  - id: "1"
//	    username: admin
//	    password_hash: "$2a$10$..."
//	    role: ADMIN
//	    active: true
type SeedUser struct {
	ID           string `koanf:"id" validate:"required"`
	Username     string `koanf:"username" validate:"required"`
	Email        string `koanf:"email" validate:"omitempty,email"`
	PasswordHash string `koanf:"password_hash" validate:"required"`
	Role         string `koanf:"role"`
	Superuser    bool   `koanf:"superuser"`
	Active       bool   `koanf:"active"`
}

// User converts the entry. An empty role means no role; legacy role names
// are accepted.
func (s SeedUser) User() (identity.User, error) {
	role := identity.NoRole()
	if s.Role != "" {
		r, ok := identity.ParseRole(s.Role)
		if !ok {
			return identity.User{}, fmt.Errorf("user %s: unknown role %q", s.Username, s.Role)
		}
		role = identity.SomeRole(r)
	}
	return identity.User{
		Principal:    identity.Principal{ID: s.ID, Username: s.Username, Email: s.Email},
		PasswordHash: []byte(s.PasswordHash),
		Superuser:    s.Superuser,
		Role:         role,
		Active:       s.Active,
	}, nil
}

// LoadSeedUsers reads the user list from a YAML seed file.
func LoadSeedUsers(path string) ([]identity.User, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load seed file %s: %w", path, err)
	}

	var entries []SeedUser
	if err := k.Unmarshal("users", &entries); err != nil {
		return nil, fmt.Errorf("failed to parse seed users: %w", err)
	}

	users := make([]identity.User, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if err := validation.Struct(&e); err != nil {
			return nil, fmt.Errorf("seed user %d: %w", i+1, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("seed user %d: duplicate id %s", i+1, e.ID)
		}
		seen[e.ID] = true
		u, err := e.User()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
