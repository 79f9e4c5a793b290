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

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"

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

// Adapter implements base.Adapter for MySQL store databases.
type Adapter struct {
	cfg    *base.Config
	db     *sql.DB
	logger *log.Logger
}

// New constructs a MySQL adapter from decrypted connection settings.
func New(cfg *base.Config) (*Adapter, error) {
	if cfg.Host == "" || cfg.Database == "" || cfg.Username == "" {
		return nil, fmt.Errorf("mysql adapter for %s: host, database and username are required", cfg.StoreID)
	}

	db, err := sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return nil, base.NewQueryError(base.KindMySQL, "Open", "", "failed to open connection", base.ClassConnection, err)
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
		logger: log.New(os.Stdout, "[MYSQL_ADAPTER] ", log.LstdFlags),
	}, nil
}

// buildDSN assembles a go-sql-driver connection string. multiStatements is
// enabled so the provisioner's DDL batches can run through ExecRaw.
func buildDSN(cfg *base.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	if cfg.TLS {
		dsn += "&tls=true"
	}
	return dsn
}

// Kind reports the backend kind.
func (a *Adapter) Kind() base.Kind {
	return base.KindMySQL
}

// Table begins a lazy query against one table.
func (a *Adapter) Table(name string) *base.QueryBuilder {
	return base.NewQuery(a, name)
}

func (a *Adapter) timeout() time.Duration {
	if a.cfg != nil && a.cfg.Timeout > 0 {
		return a.cfg.Timeout
	}
	return DefaultTimeout
}

// RunQuery executes a built QuerySpec and scans all rows.
func (a *Adapter) RunQuery(ctx context.Context, spec *base.QuerySpec) ([]base.Row, error) {
	stmt, args, err := sqlgen.Select(spec, sqlgen.DialectMySQL)
	if err != nil {
		return nil, base.NewQueryError(base.KindMySQL, "Query", "", err.Error(), base.ClassOther, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rows, err := a.db.QueryContext(queryCtx, stmt, args...)
	if err != nil {
		return nil, a.wrap("Query", err)
	}
	defer func() { _ = rows.Close() }()

	return a.scanRows(rows)
}

// CountQuery executes a COUNT for the spec.
func (a *Adapter) CountQuery(ctx context.Context, spec *base.QuerySpec) (int, error) {
	stmt, args, err := sqlgen.Select(spec, sqlgen.DialectMySQL)
	if err != nil {
		return 0, base.NewQueryError(base.KindMySQL, "Count", "", err.Error(), base.ClassOther, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	var count int
	if err := a.db.QueryRowContext(queryCtx, stmt, args...).Scan(&count); err != nil {
		return 0, a.wrap("Count", err)
	}
	return count, nil
}

// Insert creates rows. MySQL has no RETURNING, so the rows are returned as
// submitted; server-filled defaults are not fetched back.
func (a *Adapter) Insert(ctx context.Context, table string, rows []base.Row) ([]base.Row, error) {
	stmt, args, err := sqlgen.Insert(table, rows, sqlgen.DialectMySQL, false)
	if err != nil {
		return nil, base.NewQueryError(base.KindMySQL, "Insert", "", err.Error(), base.ClassOther, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	if _, err := a.db.ExecContext(execCtx, stmt, args...); err != nil {
		return nil, a.wrap("Insert", err)
	}

	a.logger.Printf("Inserted %d rows into %s", len(rows), table)
	return rows, nil
}

// Update patches matching rows, then re-reads them. Filters on patched
// columns are re-evaluated against the new values so the read matches the
// post-update state.
func (a *Adapter) Update(ctx context.Context, table string, patch base.Row, filters ...base.Filter) ([]base.Row, error) {
	stmt, args, err := sqlgen.Update(table, patch, filters, sqlgen.DialectMySQL, false)
	if err != nil {
		return nil, base.NewQueryError(base.KindMySQL, "Update", "", err.Error(), base.ClassOther, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	if _, err := a.db.ExecContext(execCtx, stmt, args...); err != nil {
		return nil, a.wrap("Update", err)
	}

	reread := make([]base.Filter, len(filters))
	for i, f := range filters {
		if f.Op == base.OpEq {
			if v, ok := patch[f.Column]; ok {
				f.Value = v
			}
		}
		reread[i] = f
	}

	spec := &base.QuerySpec{Table: table, Filters: reread}
	return a.RunQuery(ctx, spec)
}

// Delete removes matching rows.
func (a *Adapter) Delete(ctx context.Context, table string, filters ...base.Filter) (bool, error) {
	stmt, args, err := sqlgen.Delete(table, filters, sqlgen.DialectMySQL)
	if err != nil {
		return false, base.NewQueryError(base.KindMySQL, "Delete", "", err.Error(), base.ClassOther, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	if _, err := a.db.ExecContext(execCtx, stmt, args...); err != nil {
		return false, a.wrap("Delete", err)
	}
	return true, nil
}

// ExecRaw executes a backend-native statement, returning result rows if
// the statement yields any.
func (a *Adapter) ExecRaw(ctx context.Context, statement string, params ...interface{}) ([]base.Row, error) {
	rows, err := a.db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, a.wrap("ExecRaw", err)
	}
	defer func() { _ = rows.Close() }()

	return a.scanRows(rows)
}

// TestConnection performs a minimal read against the probe table. A
// missing table still counts as reachable.
func (a *Adapter) TestConnection(ctx context.Context) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	stmt := fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", sqlgen.QuoteIdent(base.ProbeTable, sqlgen.DialectMySQL))
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
		return base.NewQueryError(base.KindMySQL, "Close", "", "failed to close pool", base.ClassOther, err)
	}
	return nil
}

// wrap converts a driver error into the uniform QueryError, classifying
// the native error number.
func (a *Adapter) wrap(operation string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		code := fmt.Sprintf("%d", myErr.Number)
		class := base.ClassOther
		switch myErr.Number {
		case 1146: // ER_NO_SUCH_TABLE
			class = base.ClassMissingTable
		case 1062: // ER_DUP_ENTRY
			class = base.ClassDuplicate
		case 1044, 1045, 1040, 1129, 1130: // access denied, too many connections, host blocked
			class = base.ClassConnection
		}
		return base.NewQueryError(base.KindMySQL, operation, code, myErr.Message, class, err)
	}

	return base.NewQueryError(base.KindMySQL, operation, "", err.Error(), base.ClassConnection, err)
}

// scanRows converts sql.Rows into the generic Row form.
func (a *Adapter) scanRows(rows *sql.Rows) ([]base.Row, error) {
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
