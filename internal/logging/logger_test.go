// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	SetLogger(NewTestLogger(&buf))
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("info") || !ValidLevel(" Debug ") {
		t.Error("expected info and debug to be valid")
	}
	if ValidLevel("verbose") {
		t.Error("verbose should not be a valid level")
	}
}

func TestCtxAddsRequestAndCorrelationIDs(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	Ctx(ctx).Info().Msg("hello")

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", m["request_id"])
	}
	if m["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v, want corr-1", m["correlation_id"])
	}
}

func TestCtxWithoutIDs(t *testing.T) {
	buf := captureGlobal(t)

	Ctx(context.Background()).Info().Msg("plain")

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if _, ok := m["request_id"]; ok {
		t.Error("request_id should be absent")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("correlation id length = %d, want 8", len(a))
	}
	if a == b {
		t.Error("correlation ids should be unique")
	}
}

func TestSecurityLoggerMasksValues(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecurityLoggerWithLogger(NewTestLogger(&buf))

	sl.LogEvent(&SecurityEvent{
		Event:     "login_failed",
		Username:  "mgonzalez",
		SessionID: "abcdefghijklmnopqrstuvwxyz",
		Details:   map[string]string{"password": "hunter2"},
	})

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["component"] != "security" {
		t.Errorf("component = %v, want security", m["component"])
	}
	if m["username"] != "mg***" {
		t.Errorf("username = %v, want mg***", m["username"])
	}
	if m["session_id"] != "abcd...wxyz" {
		t.Errorf("session_id = %v", m["session_id"])
	}
	if m["password"] != "***" {
		t.Errorf("password = %v, want masked", m["password"])
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v, want warn for failed event", m["level"])
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 3); got != "abc" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))

	logger.WithGroup("svc").Warn("restarting", "name", "http-server", "attempt", 2)

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["message"] != "restarting" {
		t.Errorf("message = %v", m["message"])
	}
	if m["svc.name"] != "http-server" {
		t.Errorf("svc.name = %v", m["svc.name"])
	}
	if m["svc.attempt"] != float64(2) {
		t.Errorf("svc.attempt = %v", m["svc.attempt"])
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
}
