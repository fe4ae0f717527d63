// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package config

import (
	"fmt"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/kvstore"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/ratelimit"
	"github.com/clinica-uss/clinicaguard/internal/session"
)

// Config holds all service configuration.
//
// Loading order (see Load):
//  1. Defaults from defaultConfig
//  2. YAML file from CONFIG_PATH or DefaultConfigPaths
//  3. Environment variables listed in envMappings
type Config struct {
	Server    ServerConfig       `koanf:"server"`
	Logging   LoggingConfig      `koanf:"logging"`
	KV        KVConfig           `koanf:"kv"`
	Audit     AuditConfig        `koanf:"audit"`
	RateLimit ratelimit.Config   `koanf:"ratelimit"`
	Session   session.Config     `koanf:"session"`
	Authz     authz.MatrixConfig `koanf:"authz"`
	Security  SecurityConfig     `koanf:"security"`
	Directory DirectoryConfig    `koanf:"directory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	Environment     string        `koanf:"environment" validate:"oneof=development staging production"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"required"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Logging converts to the logging package configuration.
func (l LoggingConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// KV backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// KVConfig selects the key/value store used for rate limiting and sessions.
type KVConfig struct {
	Backend string `koanf:"backend" validate:"oneof=memory badger redis"`

	BadgerPath     string        `koanf:"badger_path"`
	BadgerInMemory bool          `koanf:"badger_in_memory"`
	BadgerGC       time.Duration `koanf:"badger_gc_interval"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"min=0"`
	RedisPrefix   string `koanf:"redis_prefix"`
}

// Badger returns the Badger backend settings.
func (k KVConfig) Badger() kvstore.BadgerConfig {
	return kvstore.BadgerConfig{Path: k.BadgerPath, InMemory: k.BadgerInMemory, GCInterval: k.BadgerGC}
}

// Redis returns the Redis backend settings.
func (k KVConfig) Redis() kvstore.RedisConfig {
	return kvstore.RedisConfig{Addr: k.RedisAddr, Password: k.RedisPassword, DB: k.RedisDB, Prefix: k.RedisPrefix}
}

// Audit and directory driver names.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// AuditConfig selects the audit store.
type AuditConfig struct {
	Driver       string              `koanf:"driver" validate:"oneof=memory postgres duckdb"`
	DSN          string              `koanf:"dsn"`
	WriteTimeout time.Duration       `koanf:"write_timeout" validate:"min=100ms"`
	Breaker      audit.BreakerConfig `koanf:"breaker"`
}

// Trail returns the trail settings.
func (a AuditConfig) Trail() audit.Config {
	return audit.Config{WriteTimeout: a.WriteTimeout}
}

// SecurityConfig holds request-level protections.
type SecurityConfig struct {
	CORSOrigins []string `koanf:"cors_origins"`

	// TrustForwarded takes the client IP from X-Forwarded-For. Enable only
	// behind a proxy that sets it.
	TrustForwarded bool `koanf:"trust_forwarded"`

	// APIRateLimit caps requests per client IP per APIRateWindow across the
	// API. Zero disables it.
	APIRateLimit  int           `koanf:"api_rate_limit" validate:"min=0"`
	APIRateWindow time.Duration `koanf:"api_rate_window" validate:"min=1s"`
}

// DirectoryConfig selects where principals and role assignments come from.
type DirectoryConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory postgres"`
	DSN    string `koanf:"dsn"`

	// SeedFile is a YAML user list loaded into the memory directory.
	SeedFile string `koanf:"seed_file"`

	// AssignmentCacheTTL caches role lookups of the postgres directory.
	// Zero disables the cache so role changes apply on the next request.
	AssignmentCacheTTL  time.Duration `koanf:"assignment_cache_ttl" validate:"min=0"`
	AssignmentCacheSize int           `koanf:"assignment_cache_size" validate:"min=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		KV: KVConfig{
			Backend:     BackendMemory,
			BadgerPath:  "/data/kv",
			BadgerGC:    10 * time.Minute,
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "clinicaguard:",
		},
		Audit: AuditConfig{
			Driver:       DriverMemory,
			WriteTimeout: audit.DefaultConfig().WriteTimeout,
			Breaker:      audit.DefaultBreakerConfig(),
		},
		RateLimit: ratelimit.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Authz:     authz.MatrixConfig{ReloadInterval: time.Minute},
		Security: SecurityConfig{
			CORSOrigins:   []string{},
			APIRateLimit:  300,
			APIRateWindow: time.Minute,
		},
		Directory: DirectoryConfig{
			Driver:              DriverMemory,
			AssignmentCacheSize: 1000,
		},
	}
}
