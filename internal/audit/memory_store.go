// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore implements Store and Reader in process memory.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Create appends a copy of e.
func (s *MemoryStore) Create(ctx context.Context, e *Entry) (string, error) {
	if e == nil {
		return "", errors.New("entry cannot be nil")
	}
	if e.ID == "" {
		return "", errors.New("entry ID is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byID[e.ID]; dup {
		return "", errors.New("duplicate entry ID: " + e.ID)
	}
	c := cloneEntry(e)
	s.byID[c.ID] = len(s.entries)
	s.entries = append(s.entries, c)
	return c.ID, nil
}

// Get returns the entry with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	e := cloneEntry(&s.entries[i])
	return &e, nil
}

// List returns matching entries, most recent first.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	skipped := 0
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := &s.entries[i]
		if !f.matches(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, cloneEntry(e))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of matching entries, ignoring Limit and Offset.
func (s *MemoryStore) Count(ctx context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.entries {
		if f.matches(&s.entries[i]) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cloneEntry copies e so that stored entries never share snapshots or actors
// with callers.
func cloneEntry(e *Entry) Entry {
	c := *e
	c.Before = e.Before.Clone()
	c.After = e.After.Clone()
	if e.Actor != nil {
		a := *e.Actor
		c.Actor = &a
	}
	return c
}
