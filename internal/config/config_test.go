// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/session"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.RateLimit.MaxAttempts != 5 || cfg.RateLimit.Window != time.Minute || cfg.RateLimit.Lockout != 5*time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Session.Timeout != 30*time.Minute || cfg.Session.FingerprintPolicy != session.PolicyLog {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"RATE_LIMIT_MAX_ATTEMPTS":    "ratelimit.max_attempts",
		"SESSION_FINGERPRINT_POLICY": "session.fingerprint_policy",
		"AUDIT_BREAKER_TIMEOUT":      "audit.breaker.timeout",
		"KV_BACKEND":                 "kv.backend",
		"HOME":                       "",
		"PATH":                       "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLayers(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
ratelimit:
  max_attempts: 3
session:
  timeout: 20m
  fingerprint_policy: terminate
security:
  cors_origins:
    - https://clinica.example.org
`)
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RATE_LIMIT_LOCKOUT", "10m")
	t.Setenv("SESSION_TIMEOUT", "45m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.RateLimit.MaxAttempts != 3 || cfg.RateLimit.Lockout != 10*time.Minute || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Session.Timeout != 45*time.Minute {
		t.Errorf("Session.Timeout = %s, want env to win over file", cfg.Session.Timeout)
	}
	if cfg.Session.FingerprintPolicy != session.PolicyTerminate {
		t.Errorf("FingerprintPolicy = %q", cfg.Session.FingerprintPolicy)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if !reflect.DeepEqual(cfg.Security.CORSOrigins, []string{"https://clinica.example.org"}) {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoadCommaSeparatedOrigins(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("CORS_ORIGINS", "https://a.example.org, https://b.example.org,")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://a.example.org", "https://b.example.org"}
	if !reflect.DeepEqual(cfg.Security.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("SESSION_FINGERPRINT_POLICY", "ignore")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "session.fingerprint_policy") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestValidateCrossField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"redis without addr", func(c *Config) { c.KV.Backend = BackendRedis; c.KV.RedisAddr = "" }, "kv.redis_addr"},
		{"badger without path", func(c *Config) { c.KV.Backend = BackendBadger; c.KV.BadgerPath = "" }, "kv.badger_path"},
		{"postgres audit without dsn", func(c *Config) { c.Audit.Driver = DriverPostgres }, "audit.dsn"},
		{"warning past timeout", func(c *Config) { c.Session.Warning = c.Session.Timeout }, "session.warning"},
		{"max age below timeout", func(c *Config) { c.Session.MaxAge = time.Minute }, "session.max_age"},
		{"postgres directory without dsn", func(c *Config) { c.Directory.Driver = DriverPostgres }, "directory.dsn"},
		{"production memory audit", func(c *Config) {
			c.Server.Environment = "production"
			c.Session.CookieSecure = true
		}, "audit.driver"},
		{"production wildcard cors", func(c *Config) {
			c.Server.Environment = "production"
			c.Session.CookieSecure = true
			c.Audit.Driver, c.Audit.DSN = DriverPostgres, "postgres://audit"
			c.Security.CORSOrigins = []string{"*"}
		}, "cors_origins"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log level alias", func(c *Config) { c.Logging.Level = " Warning " }, ""},
		{"badger in memory", func(c *Config) { c.KV.Backend = BackendBadger; c.KV.BadgerPath = ""; c.KV.BadgerInMemory = true }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadSeedUsers(t *testing.T) {
	path := writeFile(t, "users.yaml", `
users:
  - id: "1"
    username: admin
    password_hash: "$2a$10$abcdefghijklmnopqrstuv"
    superuser: true
    active: true
  - id: "2"
    username: alumno1
    email: alumno1@uss.cl
    password_hash: "$2a$10$abcdefghijklmnopqrstuv"
    role: ALUMNO
    active: true
`)
	users, err := LoadSeedUsers(path)
	if err != nil {
		t.Fatalf("LoadSeedUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users", len(users))
	}
	if !users[0].Superuser || !users[0].Role.IsNone() {
		t.Errorf("admin = %+v", users[0])
	}
	if !users[1].Role.Is(identity.RoleStudent) || users[1].Email != "alumno1@uss.cl" || !users[1].Active {
		t.Errorf("student = %+v", users[1])
	}

	bad := []struct{ name, body string }{
		{"unknown role", "users:\n  - {id: \"1\", username: a, password_hash: x, role: JUEZ}\n"},
		{"missing hash", "users:\n  - {id: \"1\", username: a}\n"},
		{"duplicate id", "users:\n  - {id: \"1\", username: a, password_hash: x}\n  - {id: \"1\", username: b, password_hash: x}\n"},
	}
	for _, tt := range bad {
		if _, err := LoadSeedUsers(writeFile(t, "bad.yaml", tt.body)); err == nil {
			t.Errorf("%s: seed accepted", tt.name)
		}
	}
}
