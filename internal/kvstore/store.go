// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package kvstore is the key/value cache with per-key TTL that backs the rate
// limiter and the session store.
//
// Three backends are provided: Memory (single process), Badger (embedded,
// survives restarts) and Redis (shared between processes). Each key is
// read and written atomically; multi-key operations are not.
package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store closed")

// Store is a key/value cache with per-key expiry. A ttl of zero means the
// key does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// TTLReader is implemented by stores that can report the remaining lifetime
// of a key. ok is false when the key is absent or has no expiry.
type TTLReader interface {
	TTL(ctx context.Context, key string) (remaining time.Duration, ok bool, err error)
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}
