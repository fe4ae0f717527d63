// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/clinica-uss/clinicaguard/internal/api"
	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/config"
	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/kvstore"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/supervisor"
)

// openKV opens the configured backend and registers its maintenance loop.
func openKV(ctx context.Context, cfg config.KVConfig, tree *supervisor.Tree) (kvstore.Store, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		b, err := kvstore.OpenBadger(cfg.Badger())
		if err != nil {
			return nil, err
		}
		tree.AddStorageService(b)
		logging.Info().Str("path", cfg.BadgerPath).Bool("in_memory", cfg.BadgerInMemory).Msg("Badger kv store opened")
		return b, nil
	case config.BackendRedis:
		r, err := kvstore.NewRedis(ctx, cfg.Redis())
		if err != nil {
			return nil, err
		}
		logging.Info().Str("addr", cfg.RedisAddr).Msg("Redis kv store connected")
		return r, nil
	default:
		m := kvstore.NewMemory()
		tree.AddStorageService(m)
		logging.Warn().Msg("Using in-memory kv store; sessions and lockouts are lost on restart")
		return m, nil
	}
}

func kvProbe(kv kvstore.Store) api.HealthCheck {
	return func(ctx context.Context) error {
		_, _, err := kv.Get(ctx, "health:probe")
		return err
	}
}

func openSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

type auditBackend struct {
	store  audit.Store
	reader audit.Reader
	checks map[string]api.HealthCheck
	close  func()
}

// openAudit returns the audit store. SQL stores are wrapped in a breaker so
// a database outage sends entries to the fallback log without blocking
// requests.
func openAudit(ctx context.Context, cfg config.AuditConfig) (*auditBackend, error) {
	if cfg.Driver == config.DriverMemory {
		logging.Warn().Msg("Using in-memory audit store; entries are lost on restart")
		s := audit.NewMemoryStore()
		return &auditBackend{store: s, reader: s, close: func() {}}, nil
	}

	dialect := audit.Dialect(cfg.Driver)
	db, err := openSQL(ctx, dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	s, err := audit.NewSQLStore(db, dialect)
	if err == nil {
		err = s.CreateTable(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}

	b := audit.NewBreakerStore(s, cfg.Breaker)
	logging.Info().Str("driver", cfg.Driver).Msg("Audit store ready")
	return &auditBackend{
		store:  b,
		reader: b,
		checks: map[string]api.HealthCheck{"audit_db": db.PingContext},
		close:  func() { closeQuietly("audit db", db.Close) },
	}, nil
}

type directoryBackend struct {
	directory identity.Directory
	parties   authz.PartyResolver
	checks    map[string]api.HealthCheck
	close     func()
}

// withAssignmentCache wraps dir when directory.assignment_cache_ttl is set.
// Role changes then take up to one TTL to reach authorization decisions.
func withAssignmentCache(dir identity.Directory, cfg config.DirectoryConfig) identity.Directory {
	if cfg.AssignmentCacheTTL <= 0 {
		return dir
	}
	logging.Warn().
		Dur("ttl", cfg.AssignmentCacheTTL).
		Int("capacity", cfg.AssignmentCacheSize).
		Msg("Role assignment cache enabled; role changes apply only after the cached entry expires")
	return identity.NewCachedDirectory(dir, cfg.AssignmentCacheTTL, cfg.AssignmentCacheSize)
}

func openDirectory(ctx context.Context, cfg config.DirectoryConfig) (*directoryBackend, error) {
	if cfg.Driver == config.DriverPostgres {
		db, err := openSQL(ctx, audit.DialectPostgres.DriverName(), cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("directory: %w", err)
		}
		return &directoryBackend{
			directory: withAssignmentCache(identity.NewSQLDirectory(db), cfg),
			parties:   authz.NewSQLPartyResolver(db),
			checks:    map[string]api.HealthCheck{"directory_db": db.PingContext},
			close:     func() { closeQuietly("directory db", db.Close) },
		}, nil
	}

	dir := identity.NewMemoryDirectory()
	if cfg.SeedFile != "" {
		users, err := config.LoadSeedUsers(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if err := dir.Add(u); err != nil {
				return nil, fmt.Errorf("seed user %s: %w", u.Username, err)
			}
		}
		logging.Info().Int("users", len(users)).Str("file", cfg.SeedFile).Msg("Directory seeded")
	} else {
		logging.Warn().Msg("Directory has no users; set directory.seed_file")
	}
	return &directoryBackend{
		directory: dir,
		parties:   authz.NewMemoryPartyResolver(),
		close:     func() {},
	}, nil
}
