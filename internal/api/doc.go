// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

/*
Package api exposes the access-control core over HTTP using the chi router.

Routes:

	GET  /health, /health/live, /health/ready
	GET  /metrics
	POST /api/v1/auth/login          count-then-lock guarded login
	GET  /api/v1/auth/session        time left on the session (not activity)
	POST /api/v1/auth/logout
	GET  /api/v1/me                  principal, role and permission map
	POST /api/v1/authz/check         decision for the calling principal
	POST /api/v1/audit/events        record a domain event
	GET  /api/v1/audit               puede_ver_auditoria
	GET  /api/v1/audit/{id}          puede_ver_auditoria
	GET  /api/v1/audit/export        puede_exportar_auditoria, NDJSON or CEF

Every route under /api/v1 except login and session status runs behind the
session middleware, which expires idle sessions and checks the client
fingerprint before the handler sees the request.
*/
package api
