// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package ratelimit throttles repeated authentication failures with a
// count-then-lock window kept in a kvstore.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/kvstore"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/metrics"
)

// ActionLogin is the action name used by the login endpoint.
const ActionLogin = "login"

// Config holds limiter thresholds.
type Config struct {
	// MaxAttempts is the number of failures that triggers a block.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1"`

	// Window is the sliding lifetime of the failure counter.
	Window time.Duration `koanf:"window" validate:"min=1s"`

	// Lockout is how long an identifier stays blocked.
	Lockout time.Duration `koanf:"lockout" validate:"min=1s"`
}

// DefaultConfig returns 5 attempts per 60s window and a 300s lockout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      60 * time.Second,
		Lockout:     300 * time.Second,
	}
}

// Attempt is the outcome of RecordAttempt.
type Attempt struct {
	Blocked           bool
	AttemptsRemaining int
	BlockSeconds      int
}

// RateLimited is returned by Check while an identifier is blocked.
type RateLimited struct {
	Identifier string
	Action     string
	Remaining  time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("%s blocked for %s: %s remaining", e.Identifier, e.Action, e.Remaining)
}

// block is the value stored under the block key.
type block struct {
	Attempts int   `json:"intentos"`
	Until    int64 `json:"hasta"`
}

// Limiter counts failures per (identifier, action).
type Limiter struct {
	store    kvstore.Store
	cfg      Config
	now      func() time.Time
	security *logging.SecurityLogger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSecurityLogger sets the logger used for block events.
func WithSecurityLogger(s *logging.SecurityLogger) Option {
	return func(l *Limiter) { l.security = s }
}

// New creates a limiter on store.
func New(store kvstore.Store, cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		security: logging.Security(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter thresholds.
func (l *Limiter) Config() Config { return l.cfg }

func counterKey(id, action string) string { return "rate_limit:" + action + ":" + id }
func blockKey(id, action string) string   { return "rate_block:" + action + ":" + id }

// IsBlocked reports whether id is currently blocked for action.
func (l *Limiter) IsBlocked(ctx context.Context, id, action string) (bool, error) {
	_, ok, err := l.store.Get(ctx, blockKey(id, action))
	if err != nil {
		return false, fmt.Errorf("read block: %w", err)
	}
	return ok, nil
}

// RemainingBlockSeconds returns how long id stays blocked, rounded up, or 0.
// Backends that report key lifetimes are asked directly; otherwise the stored
// expiry timestamp is used.
func (l *Limiter) RemainingBlockSeconds(ctx context.Context, id, action string) (int, error) {
	d, err := l.remaining(ctx, id, action)
	if err != nil {
		return 0, err
	}
	return ceilSeconds(d), nil
}

func (l *Limiter) remaining(ctx context.Context, id, action string) (time.Duration, error) {
	key := blockKey(id, action)
	if ttl, ok := l.store.(kvstore.TTLReader); ok {
		d, found, err := ttl.TTL(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("read block ttl: %w", err)
		}
		if found {
			return d, nil
		}
	}

	var b block
	found, err := kvstore.GetJSON(ctx, l.store, key, &b)
	if err != nil {
		return 0, fmt.Errorf("read block: %w", err)
	}
	if !found {
		return 0, nil
	}
	d := time.Unix(b.Until, 0).Sub(l.now())
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// RecordAttempt counts one failure. A blocked identifier is reported as
// blocked without touching the counter. The attempt that reaches MaxAttempts
// starts a block and resets the counter.
func (l *Limiter) RecordAttempt(ctx context.Context, id, action string) (Attempt, error) {
	blocked, err := l.IsBlocked(ctx, id, action)
	if err != nil {
		return Attempt{}, err
	}
	if blocked {
		secs, err := l.RemainingBlockSeconds(ctx, id, action)
		if err != nil {
			return Attempt{}, err
		}
		return Attempt{Blocked: true, BlockSeconds: secs}, nil
	}

	count, err := l.Attempts(ctx, id, action)
	if err != nil {
		return Attempt{}, err
	}
	count++
	metrics.RateLimitAttempts.WithLabelValues(action).Inc()

	if err := kvstore.SetJSON(ctx, l.store, counterKey(id, action), count, l.cfg.Window); err != nil {
		return Attempt{}, fmt.Errorf("write counter: %w", err)
	}

	if count < l.cfg.MaxAttempts {
		return Attempt{AttemptsRemaining: l.cfg.MaxAttempts - count}, nil
	}

	b := block{Attempts: count, Until: l.now().Add(l.cfg.Lockout).Unix()}
	if err := kvstore.SetJSON(ctx, l.store, blockKey(id, action), b, l.cfg.Lockout); err != nil {
		return Attempt{}, fmt.Errorf("write block: %w", err)
	}
	if err := l.store.Delete(ctx, counterKey(id, action)); err != nil {
		return Attempt{}, fmt.Errorf("reset counter: %w", err)
	}

	secs := ceilSeconds(l.cfg.Lockout)
	metrics.RateLimitBlocks.WithLabelValues(action).Inc()
	l.security.LogLoginBlocked(id, action, secs)
	return Attempt{Blocked: true, BlockSeconds: secs}, nil
}

// Attempts returns the failures counted in the current window.
func (l *Limiter) Attempts(ctx context.Context, id, action string) (int, error) {
	var count int
	if _, err := kvstore.GetJSON(ctx, l.store, counterKey(id, action), &count); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

// Clear removes the counter and any block, e.g. after a successful login.
func (l *Limiter) Clear(ctx context.Context, id, action string) error {
	if err := l.store.Delete(ctx, counterKey(id, action)); err != nil {
		return fmt.Errorf("clear counter: %w", err)
	}
	if err := l.store.Delete(ctx, blockKey(id, action)); err != nil {
		return fmt.Errorf("clear block: %w", err)
	}
	return nil
}

// Check returns *RateLimited when id is blocked for action.
func (l *Limiter) Check(ctx context.Context, id, action string) error {
	blocked, err := l.IsBlocked(ctx, id, action)
	if err != nil || !blocked {
		return err
	}
	d, err := l.remaining(ctx, id, action)
	if err != nil {
		return err
	}
	metrics.RateLimitRejections.WithLabelValues(action).Inc()
	return &RateLimited{Identifier: id, Action: action, Remaining: d}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
