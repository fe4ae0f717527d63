// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package supervisor runs the long-lived parts of the service under a suture
// v4 tree.
//
//	root
//	├── storage   kv store sweeper / badger value-log GC
//	└── api       HTTP server
//
// A crashing storage maintenance loop is restarted with backoff without
// taking the HTTP server down. Supervisor events are logged through
// sutureslog on the slog bridge of the logging package.
package supervisor
