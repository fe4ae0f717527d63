// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinica-uss/clinicaguard/internal/logging"
)

const (
	assignmentQuery = `SELECT u.is_superuser, u.is_active, p.role
FROM users u LEFT JOIN profiles p ON p.user_id = u.id
WHERE u.id = $1`

	credentialsQuery = `SELECT id, username, email, password_hash, is_active
FROM users WHERE lower(username) = $1`
)

// SQLDirectory reads users and profiles from the application database.
//
// Expected tables:
//
//	users(id TEXT, username TEXT, email TEXT, password_hash TEXT, is_superuser BOOL, is_active BOOL)
//	profiles(user_id TEXT, role TEXT)
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory wraps an open database handle.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// Assignment implements Directory. Unknown stored role names yield NoRole.
func (d *SQLDirectory) Assignment(ctx context.Context, principalID string) (Assignment, error) {
	var (
		superuser, active bool
		role              sql.NullString
	)
	err := d.db.QueryRowContext(ctx, assignmentQuery, principalID).Scan(&superuser, &active, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, ErrUnknownPrincipal
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("query assignment: %w", err)
	}
	if !active {
		return Assignment{}, nil
	}

	a := Assignment{Superuser: superuser}
	if role.Valid {
		if r, ok := ParseRole(role.String); ok {
			a.Role = SomeRole(r)
		} else {
			logging.Warn().Str("principal_id", principalID).Str("role", role.String).Msg("Unknown role in profile, treating as no role")
		}
	}
	return a, nil
}

// Authenticate implements Directory.
func (d *SQLDirectory) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	var (
		p      Principal
		email  sql.NullString
		hash   string
		active bool
	)
	err := d.db.QueryRowContext(ctx, credentialsQuery, strings.ToLower(strings.TrimSpace(username))).
		Scan(&p.ID, &p.Username, &email, &hash, &active)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, fmt.Errorf("query credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if !active {
		return Principal{}, ErrInactive
	}
	p.Email = email.String
	return p, nil
}
