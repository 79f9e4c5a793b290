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

package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeforge/platform/adapters/base"
)

func TestSelectDefaults(t *testing.T) {
	spec := &base.QuerySpec{Table: "products"}

	sql, args, err := Select(spec, DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "products"`, sql)
	assert.Empty(t, args)
}

func TestSelectFull(t *testing.T) {
	spec := &base.QuerySpec{
		Table:   "products",
		Columns: []string{"id", "title"},
		Filters: []base.Filter{
			base.Eq("status", "published"),
			base.Gt("price", 100),
		},
		Order:  []base.Ordering{{Column: "created_at", Desc: true}},
		Limit:  10,
		Offset: 20,
	}

	sql, args, err := Select(spec, DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "title" FROM "products" WHERE "status" = $1 AND "price" > $2 ORDER BY "created_at" DESC LIMIT 10 OFFSET 20`,
		sql)
	assert.Equal(t, []interface{}{"published", 100}, args)
}

func TestSelectMySQLPlaceholders(t *testing.T) {
	spec := &base.QuerySpec{
		Table:   "orders",
		Filters: []base.Filter{base.Eq("store_id", "s1"), base.Neq("state", "void")},
	}

	sql, args, err := Select(spec, DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders` WHERE `store_id` = ? AND `state` <> ?", sql)
	assert.Len(t, args, 2)
}

func TestSelectCountOnly(t *testing.T) {
	spec := &base.QuerySpec{
		Table:     "stores",
		CountOnly: true,
		Order:     []base.Ordering{{Column: "id"}},
		Limit:     5,
	}

	sql, _, err := Select(spec, DialectPostgres)
	require.NoError(t, err)
	// Ordering and limits are meaningless for a count and must not leak in.
	assert.Equal(t, `SELECT COUNT(*) FROM "stores"`, sql)
}

func TestSelectInAndNull(t *testing.T) {
	spec := &base.QuerySpec{
		Table: "users",
		Filters: []base.Filter{
			base.In("role", "admin", "owner"),
			base.IsNull("deleted_at"),
		},
	}

	sql, args, err := Select(spec, DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "role" IN ($1, $2) AND "deleted_at" IS NULL`, sql)
	assert.Equal(t, []interface{}{"admin", "owner"}, args)
}

func TestSelectEmptyInRejected(t *testing.T) {
	spec := &base.QuerySpec{
		Table:   "users",
		Filters: []base.Filter{{Column: "role", Op: base.OpIn, Value: []interface{}{}}},
	}

	_, _, err := Select(spec, DialectPostgres)
	assert.Error(t, err)
}

func TestInsertDeterministicColumnOrder(t *testing.T) {
	rows := []base.Row{
		{"name": "Shop", "slug": "shop", "currency": "usd"},
	}

	sql, args, err := Insert("stores", rows, DialectPostgres, true)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "stores" ("currency", "name", "slug") VALUES ($1, $2, $3) RETURNING *`, sql)
	assert.Equal(t, []interface{}{"usd", "Shop", "shop"}, args)
}

func TestInsertMultiRow(t *testing.T) {
	rows := []base.Row{
		{"code": "usd"},
		{"code": "eur"},
	}

	sql, args, err := Insert("currencies", rows, DialectMySQL, false)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `currencies` (`code`) VALUES (?), (?)", sql)
	assert.Equal(t, []interface{}{"usd", "eur"}, args)
}

func TestInsertMismatchedRows(t *testing.T) {
	rows := []base.Row{
		{"code": "usd"},
		{"code": "eur", "symbol": "€"},
	}

	_, _, err := Insert("currencies", rows, DialectPostgres, false)
	assert.Error(t, err)
}

func TestInsertNoRows(t *testing.T) {
	_, _, err := Insert("currencies", nil, DialectPostgres, false)
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	patch := base.Row{"status": "archived"}
	filters := []base.Filter{base.Eq("id", "p1")}

	sql, args, err := Update("products", patch, filters, DialectPostgres, true)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "products" SET "status" = $1 WHERE "id" = $2 RETURNING *`, sql)
	assert.Equal(t, []interface{}{"archived", "p1"}, args)
}

func TestUpdateEmptyPatchRejected(t *testing.T) {
	_, _, err := Update("products", base.Row{}, nil, DialectPostgres, false)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	sql, args, err := Delete("sessions", []base.Filter{base.Lt("expires_at", 1000)}, DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `sessions` WHERE `expires_at` < ?", sql)
	assert.Equal(t, []interface{}{1000}, args)
}

func TestQuoteIdentEscaping(t *testing.T) {
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`, DialectPostgres))
	assert.Equal(t, "`we``ird`", QuoteIdent("we`ird", DialectMySQL))
}
