// Copyright 2025 StoreForge
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"storeforge/platform/adapters/base"
)

// newMockAdapter wires an adapter around a sqlmock handle.
func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	a := &Adapter{
		cfg:    &base.Config{StoreID: "store-1", Kind: base.KindPostgres},
		db:     db,
		logger: log.New(os.Stdout, "[PG_ADAPTER] ", log.LstdFlags),
	}
	return a, mock
}

func TestNewRequiresConnectionFields(t *testing.T) {
	_, err := New(&base.Config{StoreID: "s1", Kind: base.KindPostgres, Host: "db.example.com"})
	if err == nil {
		t.Fatal("expected error for missing database/username")
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := &base.Config{
		Host:     "db.example.com",
		Database: "store_1",
		Username: "app",
		Password: "secret",
		TLS:      true,
	}
	dsn := buildDSN(cfg)
	want := "host=db.example.com port=5432 dbname=store_1 user=app password=secret sslmode=require"
	if dsn != want {
		t.Errorf("buildDSN = %q, want %q", dsn, want)
	}
}

func TestRunQueryScansRows(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`SELECT * FROM "products" WHERE "status" = $1 LIMIT 2`).
		WithArgs("published").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow("p1", []byte("Widget")).
			AddRow("p2", "Gadget"))

	rows, err := a.Table("products").Where(base.Eq("status", "published")).Limit(2).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// Byte slices from text columns come back as strings.
	if rows[0]["title"] != "Widget" {
		t.Errorf("title = %v, want Widget", rows[0]["title"])
	}
}

func TestQueryBuilderIsLazy(t *testing.T) {
	a, mock := newMockAdapter(t)

	// Building without executing must not touch the database; sqlmock
	// fails on unexpected calls, so reaching ExpectationsWereMet proves it.
	a.Table("products").Where(base.Eq("status", "published")).OrderBy("title").Limit(5)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("query builder performed I/O without Run: %v", err)
	}
}

func TestFirstReturnsNilWhenEmpty(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`SELECT * FROM "stores" LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := a.Table("stores").First(context.Background())
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil row, got %v", row)
	}
}

func TestCountQuery(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`SELECT COUNT(*) FROM "stores"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := a.Table("stores").Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestInsertReturnsCreatedRows(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`INSERT INTO "currencies" ("code") VALUES ($1) RETURNING *`).
		WithArgs("usd").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("usd"))

	created, err := a.Insert(context.Background(), "currencies", []base.Row{{"code": "usd"}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(created) != 1 || created[0]["code"] != "usd" {
		t.Errorf("unexpected created rows: %v", created)
	}
}

func TestInsertDuplicateClassified(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`INSERT INTO "users" ("email") VALUES ($1) RETURNING *`).
		WithArgs("admin@example.com").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	_, err := a.Insert(context.Background(), "users", []base.Row{{"email": "admin@example.com"}})
	if !base.IsDuplicate(err) {
		t.Errorf("expected duplicate classification, got %v", err)
	}
}

func TestUpdateReturnsAffectedRows(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`UPDATE "products" SET "status" = $1 WHERE "id" = $2 RETURNING *`).
		WithArgs("archived", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("p1", "archived"))

	rows, err := a.Update(context.Background(), "products", base.Row{"status": "archived"}, base.Eq("id", "p1"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(rows) != 1 || rows[0]["status"] != "archived" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestDelete(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectExec(`DELETE FROM "sessions" WHERE "id" = $1`).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := a.Delete(context.Background(), "sessions", base.Eq("id", "s1"))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Error("expected true")
	}
}

func TestTestConnectionTableMissingIsReachable(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`SELECT 1 FROM "stores" LIMIT 1`).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "stores" does not exist`})

	ok, err := a.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !ok {
		t.Error("missing probe table must still count as reachable")
	}
}

func TestTestConnectionEmptyTableIsReachable(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`SELECT 1 FROM "stores" LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	ok, err := a.TestConnection(context.Background())
	if err != nil || !ok {
		t.Errorf("TestConnection = %v, %v; want true, nil", ok, err)
	}
}

func TestTestConnectionUnreachable(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`SELECT 1 FROM "stores" LIMIT 1`).
		WillReturnError(errors.New("dial tcp: connection refused"))

	ok, err := a.TestConnection(context.Background())
	if ok {
		t.Error("expected false for unreachable backend")
	}
	if !base.IsConnectionFailure(err) {
		t.Errorf("expected connection classification, got %v", err)
	}
}

func TestExecRawRunsStatement(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery(`CREATE TABLE widgets (id text)`).
		WillReturnRows(sqlmock.NewRows(nil))

	rows, err := a.ExecRaw(context.Background(), "CREATE TABLE widgets (id text)")
	if err != nil {
		t.Fatalf("ExecRaw: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
}

func TestCloseIdempotent(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectClose()

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}
