// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/metrics"
)

// BreakerConfig configures BreakerStore.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed writes that opens
	// the breaker. Default: 5
	FailureThreshold uint32 `koanf:"failure_threshold"`

	// Timeout is how long the breaker stays open before probing. Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// MaxRequests is the number of probes allowed while half-open. Default: 1
	MaxRequests uint32 `koanf:"max_requests"`
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second, MaxRequests: 1}
}

// BreakerStore wraps a Store with a circuit breaker. While the breaker is
// open writes fail fast with gobreaker.ErrOpenState, which Trail routes to
// the fallback log like any other store error.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[string]
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}

	settings := gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Caller cancellation says nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.AuditBreakerState.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Audit store circuit breaker state changed")
		},
	}
	metrics.AuditBreakerState.Set(float64(gobreaker.StateClosed))
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[string](settings)}
}

// Create forwards to the wrapped store through the breaker.
func (b *BreakerStore) Create(ctx context.Context, e *Entry) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.next.Create(ctx, e)
	})
}

// State returns the breaker state name.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

// Get delegates to the wrapped store when it is a Reader. Reads bypass the
// breaker.
func (b *BreakerStore) Get(ctx context.Context, id string) (*Entry, error) {
	r, ok := b.next.(Reader)
	if !ok {
		return nil, ErrNotReadable
	}
	return r.Get(ctx, id)
}

// List delegates to the wrapped store when it is a Reader.
func (b *BreakerStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	r, ok := b.next.(Reader)
	if !ok {
		return nil, ErrNotReadable
	}
	return r.List(ctx, f)
}

// Count delegates to the wrapped store when it is a Reader.
func (b *BreakerStore) Count(ctx context.Context, f Filter) (int64, error) {
	r, ok := b.next.(Reader)
	if !ok {
		return 0, ErrNotReadable
	}
	return r.Count(ctx, f)
}

// ErrNotReadable is returned when listing a store that cannot be read back.
var ErrNotReadable = errors.New("audit store does not support listing")
