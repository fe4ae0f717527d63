// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package identity

import (
	"context"
	"sync"
	"time"
)

type cachedAssignment struct {
	principalID string
	assignment  Assignment
	expiresAt   time.Time
	prev, next  *cachedAssignment
}

// CachedDirectory keeps recent Assignment lookups in a bounded LRU so that a
// database-backed directory is not queried on every authorization decision.
// A role change becomes visible once the cached entry expires or is
// invalidated. Errors are never cached.
type CachedDirectory struct {
	next     Directory
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*cachedAssignment

	// head.next is the most recently used entry, tail.prev the least.
	head, tail *cachedAssignment

	hits, misses int64
}

// NewCachedDirectory wraps next. capacity <= 0 means 1000.
func NewCachedDirectory(next Directory, ttl time.Duration, capacity int) *CachedDirectory {
	if capacity <= 0 {
		capacity = 1000
	}
	d := &CachedDirectory{
		next:     next,
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		items:    make(map[string]*cachedAssignment, capacity),
		head:     &cachedAssignment{},
		tail:     &cachedAssignment{},
	}
	d.head.next = d.tail
	d.tail.prev = d.head
	return d
}

// Assignment implements Directory.
func (d *CachedDirectory) Assignment(ctx context.Context, principalID string) (Assignment, error) {
	if a, ok := d.lookup(principalID); ok {
		return a, nil
	}
	a, err := d.next.Assignment(ctx, principalID)
	if err != nil {
		return Assignment{}, err
	}
	d.store(principalID, a)
	return a, nil
}

// Authenticate implements Directory. It always reaches the wrapped
// directory and refreshes the cached assignment of the principal.
func (d *CachedDirectory) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	p, err := d.next.Authenticate(ctx, username, password)
	if err == nil {
		d.Invalidate(p.ID)
	}
	return p, err
}

// Invalidate drops the cached assignment of principalID.
func (d *CachedDirectory) Invalidate(principalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.items[principalID]; ok {
		d.unlink(e)
	}
}

// Stats returns hit and miss counters and the current size.
func (d *CachedDirectory) Stats() (hits, misses int64, size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits, d.misses, len(d.items)
}

func (d *CachedDirectory) lookup(principalID string) (Assignment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.items[principalID]
	if !ok {
		d.misses++
		return Assignment{}, false
	}
	if d.now().After(e.expiresAt) {
		d.unlink(e)
		d.misses++
		return Assignment{}, false
	}
	d.detach(e)
	d.pushFront(e)
	d.hits++
	return e.assignment, true
}

func (d *CachedDirectory) store(principalID string, a Assignment) {
	d.mu.Lock()
	defer d.mu.Unlock()

	expiresAt := d.now().Add(d.ttl)
	if e, ok := d.items[principalID]; ok {
		e.assignment = a
		e.expiresAt = expiresAt
		d.detach(e)
		d.pushFront(e)
		return
	}
	e := &cachedAssignment{principalID: principalID, assignment: a, expiresAt: expiresAt}
	d.pushFront(e)
	d.items[principalID] = e
	for len(d.items) > d.capacity {
		d.unlink(d.tail.prev)
	}
}

// The helpers below require d.mu.

func (d *CachedDirectory) pushFront(e *cachedAssignment) {
	e.prev = d.head
	e.next = d.head.next
	d.head.next.prev = e
	d.head.next = e
}

func (d *CachedDirectory) detach(e *cachedAssignment) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (d *CachedDirectory) unlink(e *cachedAssignment) {
	d.detach(e)
	delete(d.items, e.principalID)
}
