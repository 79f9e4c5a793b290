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

package provision

import (
	"fmt"
	"strings"
	"sync"
)

// Artifacts is the embedded schema pre-separated into a tables-only
// script and a constraints-only script. The tables script is safe to
// apply in source order even when a table references one defined later;
// referential constraints arrive in the second pass.
type Artifacts struct {
	Tables      string
	Constraints string
	TableNames  []string
}

var (
	artifactsOnce sync.Once
	artifacts     *Artifacts
	artifactsErr  error
)

// SchemaArtifacts returns the split schema. The split is computed once
// per process from the embedded DDL.
func SchemaArtifacts() (*Artifacts, error) {
	artifactsOnce.Do(func() {
		artifacts, artifactsErr = buildArtifacts(schemaSQL)
	})
	return artifacts, artifactsErr
}

// buildArtifacts parses the DDL into statements and moves every foreign
// key (inline column references, table-level constraints and standalone
// ALTER TABLE additions) into the constraints script.
func buildArtifacts(src string) (*Artifacts, error) {
	var tables, constraints []string
	var names []string

	for _, stmt := range splitStatements(src) {
		upper := strings.ToUpper(stmt)
		switch {
		case strings.HasPrefix(upper, "CREATE TABLE"):
			rewritten, fks, name, err := splitCreateTable(stmt)
			if err != nil {
				return nil, err
			}
			tables = append(tables, rewritten)
			constraints = append(constraints, fks...)
			names = append(names, name)
		case strings.HasPrefix(upper, "ALTER TABLE") && containsKeyword(stmt, "FOREIGN"):
			constraints = append(constraints, stmt)
		default:
			tables = append(tables, stmt)
		}
	}

	return &Artifacts{
		Tables:      strings.Join(tables, ";\n\n") + ";\n",
		Constraints: strings.Join(constraints, ";\n") + ";\n",
		TableNames:  names,
	}, nil
}

// splitCreateTable rewrites one CREATE TABLE statement without foreign
// keys and returns the stripped constraints as ALTER TABLE statements.
func splitCreateTable(stmt string) (rewritten string, fks []string, table string, err error) {
	open := strings.IndexByte(stmt, '(')
	closing := strings.LastIndexByte(stmt, ')')
	if open < 0 || closing < open {
		return "", nil, "", fmt.Errorf("malformed CREATE TABLE: %.60s", stmt)
	}

	header := strings.TrimSpace(stmt[:open])
	table = tableNameFromHeader(header)
	if table == "" {
		return "", nil, "", fmt.Errorf("cannot determine table name: %.60s", stmt)
	}

	var kept []string
	for _, item := range splitTopLevel(stmt[open+1 : closing]) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		upper := strings.ToUpper(item)

		// Table-level foreign key constraint.
		if strings.HasPrefix(upper, "FOREIGN KEY") ||
			(strings.HasPrefix(upper, "CONSTRAINT") && containsKeyword(item, "FOREIGN")) {
			fks = append(fks, fmt.Sprintf("ALTER TABLE %s ADD %s", table, item))
			continue
		}

		// Inline column reference: keep the column, move the clause.
		if idx := keywordIndex(item, "REFERENCES"); idx >= 0 {
			column := strings.Fields(item)[0]
			clause := strings.TrimSpace(item[idx:])
			kept = append(kept, strings.TrimSpace(item[:idx]))
			fks = append(fks, fmt.Sprintf("ALTER TABLE %s ADD FOREIGN KEY (%s) %s", table, column, clause))
			continue
		}

		kept = append(kept, item)
	}

	rewritten = header + " (\n    " + strings.Join(kept, ",\n    ") + "\n)"
	return rewritten, fks, table, nil
}

// tableNameFromHeader pulls the table name out of "CREATE TABLE
// [IF NOT EXISTS] name".
func tableNameFromHeader(header string) string {
	fields := strings.Fields(header)
	if len(fields) < 3 {
		return ""
	}
	name := fields[len(fields)-1]
	return strings.Trim(name, `"`)
}

// splitStatements breaks a script into statements at semicolons outside
// quoted strings and comments. Comment-only fragments are dropped.
func splitStatements(src string) []string {
	var stmts []string
	var cur strings.Builder

	inString := false
	inLineComment := false
	inBlockComment := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
			}
			continue
		case inBlockComment:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		case inString:
			cur.WriteByte(c)
			if c == '\'' {
				// doubled quote is an escaped quote, stay in string
				if i+1 < len(src) && src[i+1] == '\'' {
					cur.WriteByte(src[i+1])
					i++
				} else {
					inString = false
				}
			}
			continue
		case c == '\'':
			inString = true
			cur.WriteByte(c)
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			inLineComment = true
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			inBlockComment = true
			i++
		case c == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// splitTopLevel splits a CREATE TABLE body at commas outside parentheses
// and quoted strings.
func splitTopLevel(body string) []string {
	var items []string
	var cur strings.Builder
	depth := 0
	inString := false

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inString:
			cur.WriteByte(c)
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
			cur.WriteByte(c)
		case c == '(':
			depth++
			cur.WriteByte(c)
		case c == ')':
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		items = append(items, cur.String())
	}
	return items
}

// keywordIndex finds a standalone keyword outside parentheses and quoted
// strings, case-insensitively. Returns -1 when absent.
func keywordIndex(s, keyword string) int {
	upper := strings.ToUpper(s)
	keyword = strings.ToUpper(keyword)
	depth := 0
	inString := false

	for i := 0; i+len(keyword) <= len(upper); i++ {
		c := upper[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(upper[i:], keyword):
			before := i == 0 || !isWordByte(upper[i-1])
			afterIdx := i + len(keyword)
			after := afterIdx >= len(upper) || !isWordByte(upper[afterIdx])
			if before && after {
				return i
			}
		}
	}
	return -1
}

// containsKeyword reports whether the standalone keyword occurs anywhere
// outside parentheses and strings.
func containsKeyword(s, keyword string) bool {
	return keywordIndex(s, keyword) >= 0
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
