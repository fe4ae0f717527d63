// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package main runs the Clinica Guard HTTP service: login with lockout,
// inactivity-bounded sessions, role-based authorization checks and the
// append-only audit trail of the legal clinic.
//
// # Startup
//
//  1. Configuration from defaults, config.yaml and the environment (koanf)
//  2. Key/value store for sessions and login lockouts (memory, Badger or Redis)
//  3. Audit store (memory, PostgreSQL or DuckDB) behind a circuit breaker
//  4. User directory (seed file or PostgreSQL) and the role matrix (Casbin)
//  5. HTTP API under a suture supervisor tree
//
// # Examples
//
// Development with an in-memory everything:
//
//	export DIRECTORY_SEED_FILE=./users.yaml
//	./clinicaguard
//
// Production against the clinic database:
//
//	export DIRECTORY_DRIVER=postgres
//	export DIRECTORY_DSN=postgres://guard@db/clinica
//	export AUDIT_DRIVER=postgres
//	export AUDIT_DSN=postgres://guard@db/clinica
//	export KV_BACKEND=redis
//	export REDIS_ADDR=redis:6379
//	export DIRECTORY_ASSIGNMENT_CACHE_TTL=15s
//	export SESSION_COOKIE_SECURE=true
//	./clinicaguard
//
// SIGINT and SIGTERM stop the tree; in-flight requests get
// server.shutdown_timeout to finish.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinica-uss/clinicaguard/internal/api"
	"github.com/clinica-uss/clinicaguard/internal/audit"
	"github.com/clinica-uss/clinicaguard/internal/authz"
	"github.com/clinica-uss/clinicaguard/internal/config"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/ratelimit"
	"github.com/clinica-uss/clinicaguard/internal/session"
	"github.com/clinica-uss/clinicaguard/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Clinica Guard stopped with an error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging.Logging())
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("kv_backend", cfg.KV.Backend).
		Str("audit_driver", cfg.Audit.Driver).
		Str("directory_driver", cfg.Directory.Driver).
		Msg("Starting Clinica Guard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	kv, err := openKV(ctx, cfg.KV, tree)
	if err != nil {
		return err
	}
	defer closeQuietly("kv store", kv.Close)

	auditBackend, err := openAudit(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	defer auditBackend.close()

	dir, err := openDirectory(ctx, cfg.Directory)
	if err != nil {
		return err
	}
	defer dir.close()

	matrix, err := authz.NewMatrix(cfg.Authz)
	if err != nil {
		return err
	}
	defer matrix.Close()

	security := logging.Security()
	trail := audit.NewTrail(auditBackend.store, cfg.Audit.Trail())
	engine := authz.NewEngine(matrix, dir.directory,
		authz.WithAuditor(trail),
		authz.WithPartyResolver(dir.parties),
		authz.WithSecurityLogger(security),
	)
	limiter := ratelimit.New(kv, cfg.RateLimit, ratelimit.WithSecurityLogger(security))
	sessions := session.NewMiddleware(session.NewStore(kv, cfg.Session.MaxAge), cfg.Session,
		session.WithSecurityLogger(security))

	checks := map[string]api.HealthCheck{"kv": kvProbe(kv)}
	for name, check := range auditBackend.checks {
		checks[name] = check
	}
	for name, check := range dir.checks {
		checks[name] = check
	}

	handler := api.NewHandler(api.Deps{
		Directory:    dir.directory,
		Engine:       engine,
		Limiter:      limiter,
		Sessions:     sessions,
		Trail:        trail,
		AuditReader:  auditBackend.reader,
		Security:     security,
		HealthChecks: checks,
	})

	mwCfg := api.DefaultMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.TrustForwarded = cfg.Security.TrustForwarded
	mwCfg.RateLimitRequests = cfg.Security.APIRateLimit
	mwCfg.RateLimitWindow = cfg.Security.APIRateWindow

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, mwCfg).Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = <-tree.ServeBackground(ctx)

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Clinica Guard stopped")
	return nil
}

func closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		logging.Error().Err(err).Str("component", what).Msg("Close failed")
	}
}
