// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

/*
Package middleware provides the chi middleware shared by every route.

	r.Use(middleware.RequestID)
	r.Use(reqctx.Middleware(trustForwarded))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog)

RequestID must run before anything that logs, so request_id and
correlation_id reach every log line and error envelope. Metrics labels
requests by chi route pattern, not raw path, to keep label cardinality
bounded when case numbers appear in URLs.
*/
package middleware
