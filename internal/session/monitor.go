// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package session

import (
	"context"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

// Outcome is the result of a session health check.
type Outcome int

const (
	Active Outcome = iota
	Expired
	SuspectedHijack
)

func (o Outcome) String() string {
	switch o {
	case Expired:
		return "expired"
	case SuspectedHijack:
		return "suspected_hijack"
	default:
		return "active"
	}
}

// FingerprintPolicy says what to do when the user agent changes.
type FingerprintPolicy string

const (
	// PolicyLog records the mismatch and keeps the session.
	PolicyLog FingerprintPolicy = "log"
	// PolicyTerminate ends the session.
	PolicyTerminate FingerprintPolicy = "terminate"
)

// Config holds session security settings.
type Config struct {
	Timeout           time.Duration     `koanf:"timeout" validate:"min=1s"`
	Warning           time.Duration     `koanf:"warning" validate:"min=0"`
	MaxAge            time.Duration     `koanf:"max_age" validate:"min=0"`
	FingerprintPolicy FingerprintPolicy `koanf:"fingerprint_policy" validate:"oneof=log terminate"`
	CookieName        string            `koanf:"cookie_name" validate:"required"`
	CookieSecure      bool              `koanf:"cookie_secure"`
}

// DefaultConfig returns a 30 minute inactivity timeout with a 2 minute
// warning window and log-only fingerprint checks.
func DefaultConfig() Config {
	return Config{
		Timeout:           1800 * time.Second,
		Warning:           120 * time.Second,
		MaxAge:            12 * time.Hour,
		FingerprintPolicy: PolicyLog,
		CookieName:        "clinica_session",
	}
}

// Monitor applies the inactivity and fingerprint rules to sessions. It does
// not persist anything; callers save the session after a check.
type Monitor struct {
	timeout time.Duration
	warning time.Duration
}

// NewMonitor creates a monitor from cfg.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{timeout: cfg.Timeout, warning: cfg.Warning}
}

// Touch records activity at now. The first touch initializes the
// fingerprint from the request context. A session idle for longer than the
// timeout is Expired and left unchanged.
func (m *Monitor) Touch(ctx context.Context, s *Session, now time.Time) Outcome {
	if s.LastActivity.IsZero() {
		rc := reqctx.FromContext(ctx)
		s.LastActivity = now
		s.Fingerprint = Fingerprint{UserAgent: rc.UserAgent, IP: rc.ClientIP, LoginTime: now}
		return Active
	}
	if now.Sub(s.LastActivity) > m.timeout {
		return Expired
	}
	s.LastActivity = now
	return Active
}

// CheckFingerprint compares the current user agent with the recorded one.
// An empty recorded value is filled in. A mismatch leaves s untouched.
func (m *Monitor) CheckFingerprint(s *Session, userAgent string) Outcome {
	if s.Fingerprint.UserAgent == "" {
		s.Fingerprint.UserAgent = userAgent
		return Active
	}
	if s.Fingerprint.UserAgent != userAgent {
		return SuspectedHijack
	}
	return Active
}

// ExpiresIn returns how long s may stay idle before it expires.
func (m *Monitor) ExpiresIn(s *Session, now time.Time) time.Duration {
	if s.LastActivity.IsZero() {
		return m.timeout
	}
	left := m.timeout - now.Sub(s.LastActivity)
	if left < 0 {
		return 0
	}
	return left
}

// ShouldWarn reports whether s is within the warning window before expiry.
func (m *Monitor) ShouldWarn(s *Session, now time.Time) bool {
	left := m.ExpiresIn(s, now)
	return left > 0 && left <= m.warning
}

// Inactive returns how long s has been idle.
func (m *Monitor) Inactive(s *Session, now time.Time) time.Duration {
	if s.LastActivity.IsZero() {
		return 0
	}
	return now.Sub(s.LastActivity)
}
