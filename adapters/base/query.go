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

import "context"

// Op is a filter comparison operator.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpLike   Op = "like"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
)

// Filter is one predicate applied to a query, update or delete.
type Filter struct {
	Column string
	Op     Op
	Value  interface{}
}

// Eq builds an equality filter.
func Eq(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// Neq builds an inequality filter.
func Neq(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpNeq, Value: value}
}

// Gt builds a greater-than filter.
func Gt(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpGt, Value: value}
}

// Gte builds a greater-or-equal filter.
func Gte(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

// Lt builds a less-than filter.
func Lt(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpLt, Value: value}
}

// Lte builds a less-or-equal filter.
func Lte(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpLte, Value: value}
}

// Like builds a pattern-match filter.
func Like(column string, pattern string) Filter {
	return Filter{Column: column, Op: OpLike, Value: pattern}
}

// In builds a membership filter.
func In(column string, values ...interface{}) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// IsNull builds a null-check filter.
func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

// Ordering is one sort directive.
type Ordering struct {
	Column string
	Desc   bool
}

// QuerySpec is the fully-built description of one table read. Adapters
// translate it into their native query form at execution time.
type QuerySpec struct {
	Table     string
	Columns   []string
	Filters   []Filter
	Order     []Ordering
	Limit     int
	Offset    int
	CountOnly bool
}

// QueryRunner executes a built QuerySpec. Each adapter implements it; the
// builder itself performs no I/O.
type QueryRunner interface {
	RunQuery(ctx context.Context, spec *QuerySpec) ([]Row, error)
	CountQuery(ctx context.Context, spec *QuerySpec) (int, error)
}

// QueryBuilder accumulates a table-scoped query fluently. Building performs
// no I/O; execution happens on Run, First or Count.
type QueryBuilder struct {
	runner QueryRunner
	spec   QuerySpec
}

// NewQuery starts a builder for the given table. Adapters call this from
// their Table method; other components obtain builders only through an
// Adapter.
func NewQuery(runner QueryRunner, table string) *QueryBuilder {
	return &QueryBuilder{
		runner: runner,
		spec:   QuerySpec{Table: table},
	}
}

// Select restricts the projection to the given columns. Default is all.
func (q *QueryBuilder) Select(columns ...string) *QueryBuilder {
	q.spec.Columns = append(q.spec.Columns, columns...)
	return q
}

// Where appends filter predicates. Predicates combine with AND.
func (q *QueryBuilder) Where(filters ...Filter) *QueryBuilder {
	q.spec.Filters = append(q.spec.Filters, filters...)
	return q
}

// OrderBy appends an ascending sort directive.
func (q *QueryBuilder) OrderBy(column string) *QueryBuilder {
	q.spec.Order = append(q.spec.Order, Ordering{Column: column})
	return q
}

// OrderByDesc appends a descending sort directive.
func (q *QueryBuilder) OrderByDesc(column string) *QueryBuilder {
	q.spec.Order = append(q.spec.Order, Ordering{Column: column, Desc: true})
	return q
}

// Limit caps the number of returned rows.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.spec.Limit = n
	return q
}

// Offset skips the first n rows.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.spec.Offset = n
	return q
}

// Spec returns the accumulated query description.
func (q *QueryBuilder) Spec() *QuerySpec {
	return &q.spec
}

// Run executes the query and returns all matching rows.
func (q *QueryBuilder) Run(ctx context.Context) ([]Row, error) {
	return q.runner.RunQuery(ctx, &q.spec)
}

// First executes the query with a limit of one and returns the first row,
// or nil when nothing matches.
func (q *QueryBuilder) First(ctx context.Context) (Row, error) {
	spec := q.spec
	spec.Limit = 1
	rows, err := q.runner.RunQuery(ctx, &spec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count executes a count of matching rows without fetching them.
func (q *QueryBuilder) Count(ctx context.Context) (int, error) {
	spec := q.spec
	spec.CountOnly = true
	return q.runner.CountQuery(ctx, &spec)
}
