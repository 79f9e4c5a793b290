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

// Package sqlgen compiles the backend-neutral QuerySpec and mutation shapes
// into dialect-specific SQL with bound parameters. The two direct-SQL
// adapters share it; the REST-query adapter never produces SQL.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"storeforge/platform/adapters/base"
)

// Dialect selects placeholder style and conflict syntax.
type Dialect int

const (
	// DialectPostgres uses $1..$n placeholders and supports RETURNING.
	DialectPostgres Dialect = iota
	// DialectMySQL uses ? placeholders.
	DialectMySQL
)

// placeholder returns the bound-parameter marker for position n (1-based).
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdent quotes a table or column identifier. Identifiers come from
// code and embedded assets, not user input, but quoting keeps reserved
// words usable as column names.
func QuoteIdent(ident string, d Dialect) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// SortedColumns returns the row's column names in deterministic order.
func SortedColumns(row base.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Select compiles a QuerySpec into a SELECT statement.
func Select(spec *base.QuerySpec, d Dialect) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	if spec.CountOnly {
		sb.WriteString("COUNT(*)")
	} else if len(spec.Columns) == 0 {
		sb.WriteString("*")
	} else {
		quoted := make([]string, len(spec.Columns))
		for i, c := range spec.Columns {
			quoted[i] = QuoteIdent(c, d)
		}
		sb.WriteString(strings.Join(quoted, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(spec.Table, d))

	args, err := writeWhere(&sb, spec.Filters, d, 0)
	if err != nil {
		return "", nil, err
	}

	if !spec.CountOnly {
		for i, o := range spec.Order {
			if i == 0 {
				sb.WriteString(" ORDER BY ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(QuoteIdent(o.Column, d))
			if o.Desc {
				sb.WriteString(" DESC")
			}
		}
		if spec.Limit > 0 {
			fmt.Fprintf(&sb, " LIMIT %d", spec.Limit)
		}
		if spec.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", spec.Offset)
		}
	}

	return sb.String(), args, nil
}

// Insert compiles a multi-row INSERT. With returning set (postgres only)
// the statement yields the created rows.
func Insert(table string, rows []base.Row, d Dialect, returning bool) (string, []interface{}, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no rows", table)
	}

	// Column set comes from the first row; every row must match it.
	cols := SortedColumns(rows[0])
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("insert into %s: empty row", table)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(QuoteIdent(table, d))
	sb.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(c, d))
	}
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(cols))
	for ri, row := range rows {
		if len(row) != len(cols) {
			return "", nil, fmt.Errorf("insert into %s: row %d has mismatched columns", table, ri)
		}
		if ri > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for ci, c := range cols {
			v, ok := row[c]
			if !ok {
				return "", nil, fmt.Errorf("insert into %s: row %d missing column %s", table, ri, c)
			}
			if ci > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.placeholder(len(args) + 1))
			args = append(args, v)
		}
		sb.WriteString(")")
	}

	if returning && d == DialectPostgres {
		sb.WriteString(" RETURNING *")
	}

	return sb.String(), args, nil
}

// Update compiles an UPDATE ... SET statement.
func Update(table string, patch base.Row, filters []base.Filter, d Dialect, returning bool) (string, []interface{}, error) {
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("update %s: empty patch", table)
	}

	cols := SortedColumns(patch)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(QuoteIdent(table, d))
	sb.WriteString(" SET ")

	args := make([]interface{}, 0, len(cols)+len(filters))
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(c, d))
		sb.WriteString(" = ")
		sb.WriteString(d.placeholder(len(args) + 1))
		args = append(args, patch[c])
	}

	whereArgs, err := writeWhere(&sb, filters, d, len(args))
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	if returning && d == DialectPostgres {
		sb.WriteString(" RETURNING *")
	}

	return sb.String(), args, nil
}

// Delete compiles a DELETE statement.
func Delete(table string, filters []base.Filter, d Dialect) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(QuoteIdent(table, d))

	args, err := writeWhere(&sb, filters, d, 0)
	if err != nil {
		return "", nil, err
	}

	return sb.String(), args, nil
}

// writeWhere appends a WHERE clause for the filters and returns its bound
// arguments. argOffset is how many placeholders precede the clause.
func writeWhere(sb *strings.Builder, filters []base.Filter, d Dialect, argOffset int) ([]interface{}, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	sb.WriteString(" WHERE ")
	args := make([]interface{}, 0, len(filters))

	for i, f := range filters {
		if i > 0 {
			sb.WriteString(" AND ")
		}

		col := QuoteIdent(f.Column, d)

		switch f.Op {
		case base.OpEq:
			sb.WriteString(col + " = " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpNeq:
			sb.WriteString(col + " <> " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpGt:
			sb.WriteString(col + " > " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpGte:
			sb.WriteString(col + " >= " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpLt:
			sb.WriteString(col + " < " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpLte:
			sb.WriteString(col + " <= " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpLike:
			sb.WriteString(col + " LIKE " + d.placeholder(argOffset+len(args)+1))
			args = append(args, f.Value)
		case base.OpIsNull:
			sb.WriteString(col + " IS NULL")
		case base.OpIn:
			values, ok := f.Value.([]interface{})
			if !ok || len(values) == 0 {
				return nil, fmt.Errorf("filter on %s: IN requires a non-empty value list", f.Column)
			}
			sb.WriteString(col + " IN (")
			for j, v := range values {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(d.placeholder(argOffset + len(args) + 1))
				args = append(args, v)
			}
			sb.WriteString(")")
		default:
			return nil, fmt.Errorf("filter on %s: unsupported operator %q", f.Column, f.Op)
		}
	}

	return args, nil
}
