// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/clinicaguard/config.yaml",
	"/etc/clinicaguard/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in increasing order of precedence, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are comma-separated when set from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variables (lower-cased) to config paths.
// Variables not listed are ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"kv_backend":         "kv.backend",
	"badger_path":        "kv.badger_path",
	"badger_in_memory":   "kv.badger_in_memory",
	"badger_gc_interval": "kv.badger_gc_interval",
	"redis_addr":         "kv.redis_addr",
	"redis_password":     "kv.redis_password",
	"redis_db":           "kv.redis_db",
	"redis_prefix":       "kv.redis_prefix",

	"audit_driver":                    "audit.driver",
	"audit_dsn":                       "audit.dsn",
	"audit_write_timeout":             "audit.write_timeout",
	"audit_breaker_failure_threshold": "audit.breaker.failure_threshold",
	"audit_breaker_timeout":           "audit.breaker.timeout",
	"audit_breaker_max_requests":      "audit.breaker.max_requests",

	"rate_limit_max_attempts": "ratelimit.max_attempts",
	"rate_limit_window":       "ratelimit.window",
	"rate_limit_lockout":      "ratelimit.lockout",

	"session_timeout":            "session.timeout",
	"session_warning":            "session.warning",
	"session_max_age":            "session.max_age",
	"session_fingerprint_policy": "session.fingerprint_policy",
	"session_cookie_name":        "session.cookie_name",
	"session_cookie_secure":      "session.cookie_secure",

	"authz_policy_path":     "authz.policy_path",
	"authz_reload_interval": "authz.reload_interval",

	"cors_origins":    "security.cors_origins",
	"trust_forwarded": "security.trust_forwarded",
	"api_rate_limit":  "security.api_rate_limit",
	"api_rate_window": "security.api_rate_window",

	"directory_driver":                "directory.driver",
	"directory_dsn":                   "directory.dsn",
	"directory_seed_file":             "directory.seed_file",
	"directory_assignment_cache_ttl":  "directory.assignment_cache_ttl",
	"directory_assignment_cache_size": "directory.assignment_cache_size",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
