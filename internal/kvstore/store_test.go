// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// exerciseStore checks the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := s.Set(ctx, "rate_limit:login:10.0.0.1", []byte("3"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "rate_limit:login:10.0.0.1")
	if err != nil || !ok || string(got) != "3" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	// Overwrite
	if err := s.Set(ctx, "rate_limit:login:10.0.0.1", []byte("4"), time.Hour); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _, _ = s.Get(ctx, "rate_limit:login:10.0.0.1")
	if string(got) != "4" {
		t.Errorf("after overwrite got %q, want 4", got)
	}

	if r, ok := s.(TTLReader); ok {
		remaining, present, err := r.TTL(ctx, "rate_limit:login:10.0.0.1")
		if err != nil || !present {
			t.Fatalf("TTL = %v, %v, %v", remaining, present, err)
		}
		if remaining <= 59*time.Minute || remaining > time.Hour {
			t.Errorf("TTL remaining = %v, want about 1h", remaining)
		}
		if _, present, _ := r.TTL(ctx, "missing"); present {
			t.Error("TTL of missing key should not be present")
		}
	}

	if err := s.Delete(ctx, "rate_limit:login:10.0.0.1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "rate_limit:login:10.0.0.1"); ok {
		t.Error("key still present after Delete")
	}

	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing): %v", err)
	}

	type block struct {
		Intentos int     `json:"intentos"`
		Hasta    float64 `json:"hasta"`
	}
	if err := SetJSON(ctx, s, "rate_block:login:x", block{Intentos: 5, Hasta: 1700000000}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var b block
	found, err := GetJSON(ctx, s, "rate_block:login:x", &b)
	if err != nil || !found {
		t.Fatalf("GetJSON = %v, %v", found, err)
	}
	if b.Intentos != 5 || b.Hasta != 1700000000 {
		t.Errorf("decoded block = %+v", b)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStoreExpiry(t *testing.T) {
	clock := newFakeClock()
	s := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), 60*time.Second)
	_ = s.Set(ctx, "forever", []byte("v"), 0)

	clock.Advance(59 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("key expired too early")
	}
	remaining, ok, _ := s.TTL(ctx, "k")
	if !ok || remaining != time.Second {
		t.Errorf("TTL = %v, %v, want 1s", remaining, ok)
	}

	clock.Advance(time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("key should expire exactly at its deadline")
	}

	if _, ok, _ := s.Get(ctx, "forever"); !ok {
		t.Error("key without ttl should not expire")
	}
	if _, ok, _ := s.TTL(ctx, "forever"); ok {
		t.Error("key without ttl should report no TTL")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	clock := newFakeClock()
	s := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Second)
	_ = s.Set(ctx, "b", []byte("1"), time.Second)
	_ = s.Set(ctx, "c", []byte("1"), time.Hour)

	clock.Advance(2 * time.Second)
	if n := s.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if st := s.Stats(); st.Keys != 1 {
		t.Errorf("Keys after sweep = %d, want 1", st.Keys)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	in := []byte("abc")
	_ = s.Set(ctx, "k", in, 0)
	in[0] = 'x'

	out, _, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value changed through caller slice: %q", out)
	}
	out[0] = 'y'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value changed through returned slice: %q", again)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemory()
	_ = s.Close()
	if err := s.Set(context.Background(), "k", nil, 0); err != ErrClosed {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryServeStopsOnCancel(t *testing.T) {
	s := NewMemory(WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStoreWithoutTTL(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "session:abc", []byte("{}"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.TTL(ctx, "session:abc"); ok {
		t.Error("key without ttl should report no TTL")
	}
	if _, ok, _ := s.Get(ctx, "session:abc"); !ok {
		t.Error("key should be readable")
	}
}
