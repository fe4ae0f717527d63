// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/logging"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero: no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Stats counts memory store activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// Memory is an in-process Store. Expired entries are dropped lazily on read
// and in bulk by Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	closed  bool
	stats   Stats

	sweepInterval time.Duration
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithSweepInterval sets how often Serve sweeps expired keys. Default: 1m
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepInterval = d }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:       make(map[string]memoryEntry),
		now:           time.Now,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}

	e, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		m.stats.Misses++
		m.stats.Evictions++
		return nil, false, nil
	}
	m.stats.Hits++
	return append([]byte(nil), e.value...), true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, key)
	return nil
}

// TTL implements TTLReader.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false, ErrClosed
	}

	e, ok := m.entries[key]
	now := m.now()
	if !ok || e.expired(now) || e.expiresAt.IsZero() {
		return 0, false, nil
	}
	return e.expiresAt.Sub(now), true, nil
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	m.stats.Evictions += int64(removed)
	return removed
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Keys = len(m.entries)
	return s
}

// Serve sweeps expired keys until ctx is done. It satisfies suture.Service.
func (m *Memory) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logging.Debug().Int("removed", n).Msg("kvstore: swept expired keys")
			}
		}
	}
}

func (m *Memory) String() string { return "kvstore-memory-sweeper" }

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
