// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent is one entry on the security channel.
type SecurityEvent struct {
	// Event names what happened, e.g. "access_denied", "login_blocked".
	Event     string
	UserID    string
	Username  string
	SessionID string
	IPAddress string
	UserAgent string
	Success   bool
	Error     string
	Details   map[string]string
}

// SecurityLogger writes security events with sensitive values masked.
type SecurityLogger struct {
	logger zerolog.Logger
}

// Security returns a SecurityLogger on the global logger.
func Security() *SecurityLogger {
	return &SecurityLogger{logger: With().Str("component", "security").Logger()}
}

// NewSecurityLoggerWithLogger builds a SecurityLogger on a specific logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogEvent writes event at info level when it succeeded and warn level otherwise.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Warn()
	status := "failed"
	if event.Success {
		e = l.logger.Info()
		status = "success"
	}
	e = e.Str("event", event.Event).Str("status", status)

	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.Username != "" {
		e = e.Str("username", SanitizeUsername(event.Username))
	}
	if event.SessionID != "" {
		e = e.Str("session_id", SanitizeSessionID(event.SessionID))
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", Truncate(event.UserAgent, 50))
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", Truncate(event.Error, 200))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}
	e.Msg(event.Event)
}

// LogLoginSuccess logs an accepted login.
func (l *SecurityLogger) LogLoginSuccess(userID, username, ip, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event:     "login_success",
		UserID:    userID,
		Username:  username,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
}

// LogLoginFailure logs a rejected login.
func (l *SecurityLogger) LogLoginFailure(username, ip, userAgent, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:     "login_failed",
		Username:  username,
		IPAddress: ip,
		UserAgent: userAgent,
		Error:     reason,
	})
}

// LogLoginBlocked logs an attempt rejected by the rate limiter.
func (l *SecurityLogger) LogLoginBlocked(identifier, action string, remainingSeconds int) {
	l.logger.Warn().
		Str("event", "login_blocked").
		Str("identifier", identifier).
		Str("action", action).
		Int("remaining_seconds", remainingSeconds).
		Msg("Too many failed attempts")
}

// LogAccessDenied logs a permission or object-level denial.
func (l *SecurityLogger) LogAccessDenied(userID, username, role, permission, target string) {
	l.logger.Warn().
		Str("event", "access_denied").
		Str("user_id", userID).
		Str("username", SanitizeUsername(username)).
		Str("role", role).
		Str("permission", permission).
		Str("target", target).
		Msg("Access denied")
}

// LogSessionExpired logs an inactivity expiry.
func (l *SecurityLogger) LogSessionExpired(userID, sessionID string, inactiveMinutes int) {
	l.logger.Info().
		Str("event", "session_expired").
		Str("user_id", userID).
		Str("session_id", SanitizeSessionID(sessionID)).
		Int("inactive_minutes", inactiveMinutes).
		Msg("Session expired by inactivity")
}

// LogFingerprintMismatch logs a user-agent change within one session.
func (l *SecurityLogger) LogFingerprintMismatch(userID, sessionID, ip, recorded, current string) {
	l.logger.Warn().
		Str("event", "fingerprint_mismatch").
		Str("user_id", userID).
		Str("session_id", SanitizeSessionID(sessionID)).
		Str("ip", ip).
		Str("recorded_user_agent", Truncate(recorded, 50)).
		Str("current_user_agent", Truncate(current, 50)).
		Msg("User-Agent changed within session")
}

// SanitizeSessionID keeps the first and last 4 characters.
func SanitizeSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	if len(sessionID) <= 12 {
		return "***"
	}
	return sessionID[:4] + "..." + sessionID[len(sessionID)-4:]
}

// SanitizeUsername keeps the first 2 characters.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

// SanitizeValue masks values whose key names a credential.
func SanitizeValue(key, value string) string {
	switch strings.ToLower(key) {
	case "password", "secret", "token", "cookie", "session", "session_id", "authorization":
		if len(value) <= 12 {
			return "***"
		}
		return value[:4] + "..." + value[len(value)-4:]
	}
	return value
}

// Truncate cuts s to at most maxLen bytes and appends "..." when it did.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
