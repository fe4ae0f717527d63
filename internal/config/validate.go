// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/validation"
)

// Validate applies the struct tag rules, then checks that depend on more
// than one field.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	return errors.Join(
		c.validateLogging(),
		c.validateKV(),
		c.validateAudit(),
		c.validateSession(),
		c.validateDirectory(),
		c.validateSecurity(),
	)
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateKV() error {
	switch c.KV.Backend {
	case BackendBadger:
		if c.KV.BadgerPath == "" && !c.KV.BadgerInMemory {
			return fmt.Errorf("kv.badger_path is required for the badger backend")
		}
	case BackendRedis:
		if c.KV.RedisAddr == "" {
			return fmt.Errorf("kv.redis_addr is required for the redis backend")
		}
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Driver != DriverMemory && c.Audit.DSN == "" {
		return fmt.Errorf("audit.dsn is required for the %s driver", c.Audit.Driver)
	}
	if c.Audit.Driver == DriverMemory && c.Server.Environment == "production" {
		return fmt.Errorf("audit.driver memory loses the audit trail on restart and is not allowed in production")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.Warning >= c.Session.Timeout {
		return fmt.Errorf("session.warning (%s) must be shorter than session.timeout (%s)",
			c.Session.Warning, c.Session.Timeout)
	}
	if c.Session.MaxAge > 0 && c.Session.MaxAge < c.Session.Timeout {
		return fmt.Errorf("session.max_age (%s) must not be shorter than session.timeout (%s)",
			c.Session.MaxAge, c.Session.Timeout)
	}
	if c.Server.Environment == "production" && !c.Session.CookieSecure {
		return fmt.Errorf("session.cookie_secure must be enabled in production")
	}
	return nil
}

func (c *Config) validateDirectory() error {
	if c.Directory.Driver == DriverPostgres && c.Directory.DSN == "" {
		return fmt.Errorf("directory.dsn is required for the postgres driver")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if slices.Contains(c.Security.CORSOrigins, "*") && c.Server.Environment == "production" {
		return fmt.Errorf("security.cors_origins must not contain * in production")
	}
	return nil
}
