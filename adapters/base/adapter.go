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

package base

import (
	"context"
	"time"
)

// Kind identifies one of the supported backend kinds.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindRESTQL   Kind = "restql"
)

// ValidKinds is the list of supported backend kinds.
var ValidKinds = []Kind{KindPostgres, KindMySQL, KindRESTQL}

// IsValidKind checks if the given backend kind is supported.
func IsValidKind(k Kind) bool {
	for _, v := range ValidKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Row is a single result row keyed by column name.
type Row map[string]interface{}

// ProbeTable is the well-known table TestConnection reads from. A store
// database that has not been provisioned yet does not have it, which must
// still count as reachable.
const ProbeTable = "stores"

// Config holds the decrypted connection settings for one store database.
// Host/Port/Database/Username/Password apply to the direct-SQL kinds;
// BaseURL/ServiceKey apply to the REST-query kind.
type Config struct {
	StoreID  string
	Kind     Kind
	Host     string
	Port     int
	Database string
	Username string
	Password string
	TLS      bool

	BaseURL    string
	ServiceKey string

	// Timeout is the default per-operation timeout. Zero means the
	// adapter's own default.
	Timeout time.Duration

	// Options carries adapter-specific tuning (pool sizes, retry knobs).
	Options map[string]interface{}
}

// Adapter is the uniform query interface over one store database. Every
// component above the adapters is backend-agnostic: no call site after
// construction branches on Kind.
//
// Implementations must never leak driver-specific error types; failures
// surface as *QueryError (or *UnsupportedError for operations the backend
// forbids).
type Adapter interface {
	// Kind reports which backend is behind this adapter.
	Kind() Kind

	// Table begins a lazily-executed query against one table. No I/O
	// happens until Run, First or Count is called on the builder.
	Table(name string) *QueryBuilder

	// Insert creates rows and returns them as stored.
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)

	// Update applies patch to every row matching the filters and returns
	// the affected rows.
	Update(ctx context.Context, table string, patch Row, filters ...Filter) ([]Row, error)

	// Delete removes rows matching the filters.
	Delete(ctx context.Context, table string, filters ...Filter) (bool, error)

	// ExecRaw executes a backend-native statement. Not every backend
	// permits this: the REST-query kind rejects it with *UnsupportedError,
	// so callers must treat raw execution as backend-conditional.
	ExecRaw(ctx context.Context, statement string, params ...interface{}) ([]Row, error)

	// TestConnection performs a minimal read against ProbeTable. It
	// returns true both when the table answers (empty or not) and when the
	// table does not exist yet; it returns false, with the backend's
	// diagnostic error, only for network/credential failures.
	TestConnection(ctx context.Context) (bool, error)

	// Close releases pooled resources. Idempotent.
	Close() error
}
