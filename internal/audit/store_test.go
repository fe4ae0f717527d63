// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gobreaker "github.com/sony/gobreaker/v2"
)

func seedEntries(t *testing.T, s *MemoryStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := &Entry{
			ID:         fmt.Sprintf("e%d", i),
			Timestamp:  fixedNow.Add(time.Duration(i) * time.Minute),
			Action:     ActionUpdate,
			EntityKind: EntityCase,
			EntityID:   fmt.Sprintf("%d", i%3),
		}
		if i%2 == 0 {
			e.Actor = &Actor{ID: "even"}
		}
		if _, err := s.Create(context.Background(), e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
}

func TestMemoryStoreListFilterAndPaging(t *testing.T) {
	s := NewMemoryStore()
	seedEntries(t, s, 10)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"newest first", Filter{Limit: 3}, []string{"e9", "e8", "e7"}},
		{"offset", Filter{Limit: 2, Offset: 3}, []string{"e6", "e5"}},
		{"by actor", Filter{ActorID: "even", Limit: 2}, []string{"e8", "e6"}},
		{"by entity", Filter{EntityID: "0"}, []string{"e9", "e6", "e3", "e0"}},
		{"time window", Filter{Since: fixedNow.Add(2 * time.Minute), Until: fixedNow.Add(4 * time.Minute)}, []string{"e3", "e2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			ids := make([]string, len(got))
			for i := range got {
				ids[i] = got[i].ID
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("List() = %v, want %v", ids, tt.want)
			}
		})
	}

	if n, _ := s.Count(ctx, Filter{ActorID: "even", Limit: 1}); n != 5 {
		t.Errorf("Count() = %d, want 5", n)
	}
}

func TestMemoryStoreIsolatesCallerCopies(t *testing.T) {
	s := NewMemoryStore()
	e := &Entry{ID: "x", Timestamp: fixedNow, Action: ActionCreate, EntityKind: EntityCase, After: Snapshot{"estado": "ABIERTA"}}
	if _, err := s.Create(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	e.After["estado"] = "CERRADA"

	got, _ := s.Get(context.Background(), "x")
	if got.After["estado"] != "ABIERTA" {
		t.Errorf("stored snapshot mutated through caller: %v", got.After)
	}
	if _, err := s.Create(context.Background(), e); err == nil {
		t.Error("duplicate ID accepted")
	}
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestMemoryStoreReadsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := &Entry{
		ID: "x", Timestamp: fixedNow, Action: ActionUpdate, EntityKind: EntityCase,
		Actor:  &Actor{ID: "u-1", Username: "mrojas"},
		Before: Snapshot{"estado": "ABIERTA"},
		After:  Snapshot{"estado": "CERRADA"},
	}
	if _, err := s.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.After["estado"] = "ARCHIVADA"
	got.Actor.Username = "intruso"

	listed, err := s.List(ctx, Filter{})
	if err != nil || len(listed) != 1 {
		t.Fatalf("List() = %v, %v", listed, err)
	}
	listed[0].Before["estado"] = "BORRADA"
	listed[0].Actor.ID = "u-2"

	again, _ := s.Get(ctx, "x")
	if again.After["estado"] != "CERRADA" || again.Before["estado"] != "ABIERTA" {
		t.Errorf("stored snapshots mutated through a read: before %v after %v", again.Before, again.After)
	}
	if again.Actor.ID != "u-1" || again.Actor.Username != "mrojas" {
		t.Errorf("stored actor mutated through a read: %+v", again.Actor)
	}
	if n, _ := s.Count(ctx, Filter{ActorID: "u-1"}); n != 1 {
		t.Errorf("Count(actor u-1) = %d, want 1", n)
	}
}

func TestSQLStoreCreatePostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store, err := NewSQLStore(db, DialectPostgres)
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")+".*"+regexp.QuoteMeta("$14)")).
		WithArgs("id-1", sqlmock.AnyArg(), "u-7", "mrojas", "EDITAR", "CAUSA", "42", "Pérez con Soto",
			`{"estado":"ABIERTA"}`, `{"estado":"CERRADA"}`, "203.0.113.9", "Mozilla/5.0", "desc", "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.Create(context.Background(), &Entry{
		ID:          "id-1",
		Timestamp:   fixedNow,
		Actor:       &Actor{ID: "u-7", Username: "mrojas"},
		Action:      ActionUpdate,
		EntityKind:  EntityCase,
		EntityID:    "42",
		Label:       "Pérez con Soto",
		Before:      Snapshot{"estado": "ABIERTA"},
		After:       Snapshot{"estado": "CERRADA"},
		ClientIP:    "203.0.113.9",
		UserAgent:   "Mozilla/5.0",
		Description: "desc",
		RequestID:   "req-1",
	})
	if err != nil || id != "id-1" {
		t.Fatalf("Create() = (%q, %v)", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStoreCreateRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store, _ := NewSQLStore(db, DialectDuckDB)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.Create(context.Background(), &Entry{ID: "id-2", Timestamp: fixedNow, Action: ActionLogin, EntityKind: EntityUser})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStoreList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store, _ := NewSQLStore(db, DialectPostgres)
	cols := []string{"id", "timestamp", "actor_id", "actor_username", "action", "entity_kind", "entity_id", "label",
		"before_data", "after_data", "client_ip", "user_agent", "description", "request_id"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE actor_id = $1 AND action = $2 ORDER BY timestamp DESC, id DESC LIMIT 10")).
		WithArgs("u-7", "EDITAR").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b", fixedNow.Add(time.Minute), "u-7", "mrojas", "EDITAR", "CAUSA", "42", "Caso",
				`{"estado":"ABIERTA"}`, `{"estado":"CERRADA"}`, "203.0.113.9", "ua", "d", "r").
			AddRow("a", fixedNow, nil, nil, "EDITAR", "CAUSA", "42", "Caso",
				nil, `{"estado":"ABIERTA"}`, nil, nil, nil, nil))

	got, err := store.List(context.Background(), Filter{ActorID: "u-7", Action: ActionUpdate, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Actor == nil || got[0].Actor.Username != "mrojas" || got[0].After["estado"] != "CERRADA" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Actor != nil || got[1].Before != nil {
		t.Errorf("second entry = %+v", got[1])
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_entries WHERE entity_kind = $1")).
		WithArgs("CAUSA").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))
	if n, err := store.Count(context.Background(), Filter{EntityKind: EntityCase}); err != nil || n != 17 {
		t.Errorf("Count() = (%d, %v)", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStoreListFailsOnCorruptRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store, _ := NewSQLStore(db, DialectPostgres)
	cols := []string{"id", "timestamp", "actor_id", "actor_username", "action", "entity_kind", "entity_id", "label",
		"before_data", "after_data", "client_ip", "user_agent", "description", "request_id"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries ORDER BY timestamp DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b", fixedNow.Add(time.Minute), "u-7", "mrojas", "EDITAR", "CAUSA", "42", "Caso",
				nil, `{"estado":"CERRADA"}`, nil, nil, nil, nil).
			AddRow("a", fixedNow, "u-7", "mrojas", "EDITAR", "CAUSA", "42", "Caso",
				nil, `{"estado":`, nil, nil, nil, nil))

	got, err := store.List(context.Background(), Filter{})
	if err == nil {
		t.Fatalf("List() = %d entries, want error for the corrupt row", len(got))
	}
	if got != nil {
		t.Errorf("List() returned partial results: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDialectBind(t *testing.T) {
	q := "a = ? AND b = ?"
	if got := DialectPostgres.bind(q); got != "a = $1 AND b = $2" {
		t.Errorf("postgres bind = %q", got)
	}
	if got := DialectDuckDB.bind(q); got != q {
		t.Errorf("duckdb bind = %q", got)
	}
	if _, err := NewSQLStore(nil, Dialect("oracle")); err == nil {
		t.Error("unknown dialect accepted")
	}
}

func TestBreakerStoreOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingStore{err: errors.New("timeout")}
	b := NewBreakerStore(inner, BreakerConfig{FailureThreshold: 3, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		if _, err := b.Create(context.Background(), &Entry{ID: "x"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %s, want open", b.State())
	}

	_, err := b.Create(context.Background(), &Entry{ID: "y"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner store called %d times while open", inner.calls)
	}
	if _, err := b.List(context.Background(), Filter{}); !errors.Is(err, ErrNotReadable) {
		t.Errorf("List() on write-only store error = %v", err)
	}
}

func TestBreakerStorePassesThrough(t *testing.T) {
	mem := NewMemoryStore()
	b := NewBreakerStore(mem, DefaultBreakerConfig())
	trail := newTestTrail(b)

	if _, ok := trail.Login(actorCtx(), actorFromCtx()); !ok {
		t.Fatal("Login() not persisted")
	}
	if n, _ := b.Count(context.Background(), Filter{}); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestExport(t *testing.T) {
	s := NewMemoryStore()
	seedEntries(t, s, 5)

	var buf bytes.Buffer
	n, err := Export(context.Background(), s, Filter{Limit: 3}, FormatNDJSON, &buf)
	if err != nil || n != 3 {
		t.Fatalf("Export() = (%d, %v)", n, err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[0], `"id":"e4"`) {
		t.Errorf("ndjson = %q", buf.String())
	}

	buf.Reset()
	n, err = Export(context.Background(), s, Filter{}, FormatCEF, &buf)
	if err != nil || n != 5 {
		t.Fatalf("Export(cef) = (%d, %v)", n, err)
	}
	if !strings.HasPrefix(buf.String(), "CEF:0|ClinicaJuridicaUSS|ClinicaGuard|1.0|EDITAR|") {
		t.Errorf("cef = %q", buf.String())
	}

	if _, err := Export(context.Background(), s, Filter{}, Format("xml"), &buf); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestProject(t *testing.T) {
	when := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	n := 3
	var nilPerson *person

	got := Project(map[string]any{
		"fecha":   when,
		"fecha_p": &when,
		"count":   &n,
		"ref":     &person{name: "Ana"},
		"nil_ref": nilPerson,
		"file":    upload{url: "/media/a.pdf"},
		"nothing": nil,
		"list":    []int{1, 2},
	})
	want := Snapshot{
		"fecha":   "2026-05-04T10:00:00Z",
		"fecha_p": "2026-05-04T10:00:00Z",
		"count":   3,
		"ref":     "Ana",
		"nil_ref": nil,
		"file":    "/media/a.pdf",
		"nothing": nil,
		"list":    "[1 2]",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Project() = %#v, want %#v", got, want)
	}
	if Capture(nil) != nil {
		t.Error("Capture(nil) should be nil")
	}
	var nilCase *legalCase
	if Capture(nilCase) != nil {
		t.Error("Capture(typed nil) should be nil")
	}
}
