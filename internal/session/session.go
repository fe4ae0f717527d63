// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package session tracks authenticated sessions, expires them after
// inactivity and flags user-agent changes within a session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/kvstore"
)

var (
	// ErrNotFound is returned when a session is not in the store.
	ErrNotFound = errors.New("session not found")

	// ErrSessionExpired is returned for sessions idle past the timeout or
	// older than the store's maximum age.
	ErrSessionExpired = errors.New("session expired")
)

// Fingerprint is the client seen when the session was first used.
type Fingerprint struct {
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	LoginTime time.Time `json:"login_time"`
}

// Session is one authenticated session. A zero LastActivity means the
// session has not been touched yet.
type Session struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Username     string      `json:"username"`
	Email        string      `json:"email,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActivity time.Time   `json:"last_activity"`
	Fingerprint  Fingerprint `json:"fingerprint"`
}

// New creates an untouched session for p.
func New(p identity.Principal, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    p.ID,
		Username:  p.Username,
		Email:     p.Email,
		CreatedAt: now,
	}
}

// Principal returns the identity the session belongs to.
func (s *Session) Principal() identity.Principal {
	return identity.Principal{ID: s.UserID, Username: s.Username, Email: s.Email}
}

// Store keeps sessions in a kvstore under "session:{id}". Saves are
// last-writer-wins.
type Store struct {
	kv     kvstore.Store
	maxAge time.Duration
}

// NewStore creates a session store. maxAge is a fixed lifetime counted from
// CreatedAt regardless of activity; zero keeps the record until deleted.
func NewStore(kv kvstore.Store, maxAge time.Duration) *Store {
	return &Store{kv: kv, maxAge: maxAge}
}

func key(id string) string { return "session:" + id }

// Save writes s with the lifetime it has left. A session past its maximum
// age is deleted and ErrSessionExpired returned.
func (st *Store) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	ttl := st.remaining(s)
	if ttl < 0 {
		if err := st.Delete(ctx, s.ID); err != nil {
			return err
		}
		return ErrSessionExpired
	}
	if err := kvstore.SetJSON(ctx, st.kv, key(s.ID), s, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// remaining is maxAge minus the age of s at its last activity. Zero means
// no expiry; a negative value means the session is too old.
func (st *Store) remaining(s *Session) time.Duration {
	if st.maxAge <= 0 {
		return 0
	}
	if s.LastActivity.IsZero() || s.CreatedAt.IsZero() {
		return st.maxAge
	}
	left := st.maxAge - s.LastActivity.Sub(s.CreatedAt)
	if left <= 0 {
		return -1
	}
	return left
}

// Get loads a session by ID.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var s Session
	ok, err := kvstore.GetJSON(ctx, st.kv, key(id), &s)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (st *Store) Delete(ctx context.Context, id string) error {
	if err := st.kv.Delete(ctx, key(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
