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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storeforge/platform/adapters/base"
)

// insertSQL renders an INSERT with inline literals, columns in sorted
// order for determinism. Bootstrap rows travel through the channel as
// plain SQL so both execution channels behave identically.
func insertSQL(table string, row base.Row) string {
	columns := make([]string, 0, len(row))
	for c := range row {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = sqlLiteral(row[c])
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(values, ", "))
}

// sqlLiteral renders one value as a SQL literal. All values are
// platform-generated; quoting handles embedded quotes in names.
func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "NULL"
		}
		return "'" + strings.ReplaceAll(string(b), "'", "''") + "'"
	}
}

// isDuplicateErr reports whether err is a unique-constraint conflict,
// from either channel. Adapter errors carry a classification; management
// errors only carry the backend's message text.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if base.IsDuplicate(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505") ||
		strings.Contains(msg, "1062")
}

// isMissingTableErr reports whether err means the table does not exist.
func isMissingTableErr(err error) bool {
	if err == nil {
		return false
	}
	if base.IsMissingTable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "42p01") ||
		strings.Contains(msg, "1146") ||
		strings.Contains(msg, "pgrst205")
}

// countFromRows extracts the first numeric value from a count query's
// result, tolerating the numeric shapes the channels produce.
func countFromRows(rows []base.Row) int {
	if len(rows) == 0 {
		return 0
	}
	for _, v := range rows[0] {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				return parsed
			}
		case []byte:
			if parsed, err := strconv.Atoi(string(n)); err == nil {
				return parsed
			}
		}
	}
	return 0
}
