// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinica-uss/clinicaguard/internal/logging"
)

// Dialect selects placeholder style and column types for SQLStore.
type Dialect string

const (
	// DialectPostgres uses $n placeholders. Open with the pgx stdlib driver.
	DialectPostgres Dialect = "postgres"

	// DialectDuckDB uses ? placeholders. Open with the duckdb driver.
	DialectDuckDB Dialect = "duckdb"
)

// DriverName returns the database/sql driver name registered for d.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectDuckDB:
		return "duckdb"
	default:
		return ""
	}
}

func (d Dialect) jsonType() string {
	if d == DialectPostgres {
		return "JSONB"
	}
	return "JSON"
}

// bind rewrites ? placeholders for the dialect.
func (d Dialect) bind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store and Reader on a relational database.
// The caller owns db and is responsible for closing it.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore creates a SQL-backed audit store.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if dialect.DriverName() == "" {
		return nil, fmt.Errorf("unsupported audit dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// CreateTable creates the audit_entries table and its indexes if missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	j := s.dialect.jsonType()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			actor_id TEXT,
			actor_username TEXT,
			action TEXT NOT NULL,
			entity_kind TEXT NOT NULL,
			entity_id TEXT,
			label TEXT,
			before_data ` + j + `,
			after_data ` + j + `,
			client_ip TEXT,
			user_agent TEXT,
			description TEXT,
			request_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_actor ON audit_entries(actor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries(entity_kind, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Str("dialect", string(s.dialect)).Msg("Audit entries table created/verified")
	return nil
}

const insertEntry = `INSERT INTO audit_entries (
	id, timestamp, actor_id, actor_username, action, entity_kind, entity_id, label,
	before_data, after_data, client_ip, user_agent, description, request_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Create inserts e in its own transaction.
func (s *SQLStore) Create(ctx context.Context, e *Entry) (string, error) {
	if e == nil {
		return "", errors.New("entry cannot be nil")
	}

	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return "", fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return "", fmt.Errorf("failed to encode after snapshot: %w", err)
	}

	var actorID, actorName *string
	if e.Actor != nil {
		actorID, actorName = &e.Actor.ID, &e.Actor.Username
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, s.dialect.bind(insertEntry),
		e.ID, e.Timestamp.UTC(), actorID, actorName,
		string(e.Action), string(e.EntityKind), e.EntityID, e.Label,
		before, after,
		e.ClientIP, e.UserAgent, e.Description, e.RequestID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit audit entry: %w", err)
	}
	return e.ID, nil
}

func marshalSnapshot(s Snapshot) (*string, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	str := string(data)
	return &str, nil
}

const selectEntries = `SELECT
	id, timestamp, actor_id, actor_username, action, entity_kind, entity_id, label,
	CAST(before_data AS VARCHAR), CAST(after_data AS VARCHAR),
	client_ip, user_agent, description, request_id
FROM audit_entries`

// Get returns the entry with the given ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.bind(selectEntries+" WHERE id = ?"), id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return e, nil
}

// List returns matching entries, most recent first.
func (s *SQLStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	where, args := buildConditions(f)
	query := selectEntries + where + " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return out, nil
}

// Count returns the number of matching entries.
func (s *SQLStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildConditions(f)
	var n int64
	err := s.db.QueryRowContext(ctx, s.dialect.bind("SELECT COUNT(*) FROM audit_entries"+where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}

func buildConditions(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.ActorID != "" {
		add("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if f.EntityKind != "" {
		add("entity_kind = ?", string(f.EntityKind))
	}
	if f.EntityID != "" {
		add("entity_id = ?", f.EntityID)
	}
	if !f.Since.IsZero() {
		add("timestamp >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		add("timestamp < ?", f.Until.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var (
		e                   Entry
		ts                  time.Time
		actorID, actorName  sql.NullString
		action, kind        string
		entityID, label     sql.NullString
		before, after       sql.NullString
		ip, ua, desc, reqID sql.NullString
	)
	if err := r.Scan(&e.ID, &ts, &actorID, &actorName, &action, &kind, &entityID, &label,
		&before, &after, &ip, &ua, &desc, &reqID); err != nil {
		return nil, err
	}

	e.Timestamp = ts.UTC()
	if actorID.Valid && actorID.String != "" {
		e.Actor = &Actor{ID: actorID.String, Username: actorName.String}
	}
	e.Action = ActionKind(action)
	e.EntityKind = EntityKind(kind)
	e.EntityID = entityID.String
	e.Label = label.String
	e.ClientIP = ip.String
	e.UserAgent = ua.String
	e.Description = desc.String
	e.RequestID = reqID.String

	var err error
	if e.Before, err = unmarshalSnapshot(before); err != nil {
		return nil, fmt.Errorf("entry %s: before snapshot: %w", e.ID, err)
	}
	if e.After, err = unmarshalSnapshot(after); err != nil {
		return nil, fmt.Errorf("entry %s: after snapshot: %w", e.ID, err)
	}
	return &e, nil
}

func unmarshalSnapshot(ns sql.NullString) (Snapshot, error) {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil, nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(ns.String), &s); err != nil {
		return nil, err
	}
	return s, nil
}
