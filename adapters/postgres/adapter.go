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
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"

	"storeforge/platform/adapters/base"
	"storeforge/platform/adapters/sqlgen"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultTimeout is the default per-operation timeout
	DefaultTimeout = 30 * time.Second
)

// Adapter implements base.Adapter for PostgreSQL store databases.
type Adapter struct {
	cfg    *base.Config
	db     *sql.DB
	logger *log.Logger
}

// New constructs a PostgreSQL adapter from decrypted connection settings.
// No network I/O happens here; the resolver probes separately via
// TestConnection.
func New(cfg *base.Config) (*Adapter, error) {
	if cfg.Host == "" || cfg.Database == "" || cfg.Username == "" {
		return nil, fmt.Errorf("postgres adapter for %s: host, database and username are required", cfg.StoreID)
	}

	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, base.NewQueryError(base.KindPostgres, "Open", "", "failed to open connection", base.ClassConnection, err)
	}

	maxOpenConns := DefaultMaxOpenConns
	maxIdleConns := DefaultMaxIdleConns
	connMaxLifetime := DefaultConnMaxLifetime

	if val, ok := cfg.Options["max_open_conns"].(int); ok {
		maxOpenConns = val
	}
	if val, ok := cfg.Options["max_idle_conns"].(int); ok {
		maxIdleConns = val
	}
	if val, ok := cfg.Options["conn_max_lifetime"].(string); ok {
		if duration, err := time.ParseDuration(val); err == nil {
			connMaxLifetime = duration
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return &Adapter{
		cfg:    cfg,
		db:     db,
		logger: log.New(os.Stdout, "[PG_ADAPTER] ", log.LstdFlags),
	}, nil
}

// buildDSN assembles a lib/pq connection string from the config.
func buildDSN(cfg *base.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if cfg.TLS {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, port, cfg.Database, cfg.Username, cfg.Password, sslmode)
}

// Kind reports the backend kind.
func (a *Adapter) Kind() base.Kind {
	return base.KindPostgres
}

// Table begins a lazy query against one table.
func (a *Adapter) Table(name string) *base.QueryBuilder {
	return base.NewQuery(a, name)
}

// timeout resolves the per-operation deadline.
func (a *Adapter) timeout() time.Duration {
	if a.cfg != nil && a.cfg.Timeout > 0 {
		return a.cfg.Timeout
	}
	return DefaultTimeout
}

// RunQuery executes a built QuerySpec and scans all rows.
func (a *Adapter) RunQuery(ctx context.Context, spec *base.QuerySpec) ([]base.Row, error) {
	stmt, args, err := sqlgen.Select(spec, sqlgen.DialectPostgres)
	if err != nil {
		return nil, base.NewQueryError(base.KindPostgres, "Query", "", err.Error(), base.ClassOther, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rows, err := a.db.QueryContext(queryCtx, stmt, args...)
	if err != nil {
		return nil, a.wrap("Query", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows, a)
}

// CountQuery executes a COUNT for the spec.
func (a *Adapter) CountQuery(ctx context.Context, spec *base.QuerySpec) (int, error) {
	stmt, args, err := sqlgen.Select(spec, sqlgen.DialectPostgres)
	if err != nil {
		return 0, base.NewQueryError(base.KindPostgres, "Count", "", err.Error(), base.ClassOther, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	var count int
	if err := a.db.QueryRowContext(queryCtx, stmt, args...).Scan(&count); err != nil {
		return 0, a.wrap("Count", err)
	}
	return count, nil
}

// Insert creates rows and returns them as stored (RETURNING *).
func (a *Adapter) Insert(ctx context.Context, table string, rows []base.Row) ([]base.Row, error) {
	stmt, args, err := sqlgen.Insert(table, rows, sqlgen.DialectPostgres, true)
	if err != nil {
		return nil, base.NewQueryError(base.KindPostgres, "Insert", "", err.Error(), base.ClassOther, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	res, err := a.db.QueryContext(execCtx, stmt, args...)
	if err != nil {
		return nil, a.wrap("Insert", err)
	}
	defer func() { _ = res.Close() }()

	created, err := scanRows(res, a)
	if err != nil {
		return nil, err
	}
	a.logger.Printf("Inserted %d rows into %s", len(created), table)
	return created, nil
}

// Update patches matching rows and returns them (RETURNING *).
func (a *Adapter) Update(ctx context.Context, table string, patch base.Row, filters ...base.Filter) ([]base.Row, error) {
	stmt, args, err := sqlgen.Update(table, patch, filters, sqlgen.DialectPostgres, true)
	if err != nil {
		return nil, base.NewQueryError(base.KindPostgres, "Update", "", err.Error(), base.ClassOther, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	res, err := a.db.QueryContext(execCtx, stmt, args...)
	if err != nil {
		return nil, a.wrap("Update", err)
	}
	defer func() { _ = res.Close() }()

	return scanRows(res, a)
}

// Delete removes matching rows.
func (a *Adapter) Delete(ctx context.Context, table string, filters ...base.Filter) (bool, error) {
	stmt, args, err := sqlgen.Delete(table, filters, sqlgen.DialectPostgres)
	if err != nil {
		return false, base.NewQueryError(base.KindPostgres, "Delete", "", err.Error(), base.ClassOther, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	if _, err := a.db.ExecContext(execCtx, stmt, args...); err != nil {
		return false, a.wrap("Delete", err)
	}
	return true, nil
}

// ExecRaw executes a backend-native statement. Statements without bound
// parameters go through the simple protocol, so multi-statement scripts
// (the provisioner's DDL batches) are permitted. Result rows, if any, are
// returned.
func (a *Adapter) ExecRaw(ctx context.Context, statement string, params ...interface{}) ([]base.Row, error) {
	rows, err := a.db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, a.wrap("ExecRaw", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows, a)
}

// TestConnection performs a minimal read against the probe table. A
// missing table still counts as reachable: a brand-new store database has
// no schema yet.
func (a *Adapter) TestConnection(ctx context.Context) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	stmt := fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", sqlgen.QuoteIdent(base.ProbeTable, sqlgen.DialectPostgres))
	rows, err := a.db.QueryContext(probeCtx, stmt)
	if err == nil {
		_ = rows.Close()
		return true, nil
	}

	wrapped := a.wrap("TestConnection", err)
	if base.IsMissingTable(wrapped) {
		return true, nil
	}
	return false, wrapped
}

// Close releases the pool. Safe to call more than once.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return base.NewQueryError(base.KindPostgres, "Close", "", "failed to close pool", base.ClassOther, err)
	}
	return nil
}

// wrap converts a driver error into the uniform QueryError, classifying
// the native SQLSTATE.
func (a *Adapter) wrap(operation string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		class := base.ClassOther
		switch {
		case code == "42P01": // undefined_table
			class = base.ClassMissingTable
		case code == "23505": // unique_violation
			class = base.ClassDuplicate
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "28"):
			// connection_exception, invalid_authorization
			class = base.ClassConnection
		}
		return base.NewQueryError(base.KindPostgres, operation, code, pqErr.Message, class, err)
	}

	// Anything that is not a server-reported error is transport trouble
	// (dial, TLS, cancelled context, bad conn).
	return base.NewQueryError(base.KindPostgres, operation, "", err.Error(), base.ClassConnection, err)
}

// scanRows converts sql.Rows into the generic Row form, stringifying byte
// slices the way text columns arrive from the driver.
func scanRows(rows *sql.Rows, a *Adapter) ([]base.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, a.wrap("Scan", err)
	}

	results := make([]base.Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, a.wrap("Scan", err)
		}

		row := make(base.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, a.wrap("Scan", err)
	}
	return results, nil
}
