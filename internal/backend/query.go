package backend

import (
	"context"
	"sort"
)

// DefaultOrderField is the sort key applied when a query records none.
const DefaultOrderField = "created_at"

// OrderOpts mirrors the options accepted by order().
type OrderOpts struct {
	Ascending bool
}

// OrderSpec is a recorded sort key and direction.
type OrderSpec struct {
	Field     string
	Ascending bool
}

// Predicate is the single filter slot of a query: one or more field equalities
// that must all hold. Eq and Match replace it rather than adding to it.
type Predicate map[string]any

// Matches reports whether the row satisfies every field of the predicate.
// An empty predicate matches everything.
func (p Predicate) Matches(row Row) bool {
	for field, want := range p {
		if !ValuesEqual(row[field], want) {
			return false
		}
	}
	return true
}

// QuerySpec is everything a chain recorded before reaching its terminal.
type QuerySpec struct {
	Table   string
	Columns string
	Filter  Predicate
	Order   *OrderSpec
	Limit   int
}

// EffectiveOrder returns the recorded order, falling back to fallback
// (or created_at) descending.
func (q QuerySpec) EffectiveOrder(fallback string) OrderSpec {
	if q.Order != nil && q.Order.Field != "" {
		return *q.Order
	}
	if fallback == "" {
		fallback = DefaultOrderField
	}
	return OrderSpec{Field: fallback}
}

// SortRows orders rows in place by spec. The sort is stable so rows with
// equal keys keep collection order.
func SortRows(rows []Row, spec OrderSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := CompareValues(rows[i][spec.Field], rows[j][spec.Field])
		if spec.Ascending {
			return c < 0
		}
		return c > 0
	})
}

// Executor runs terminal operations for a backend. The fluent builder is
// shared; only the executor differs between the emulator and the real backend.
type Executor interface {
	FetchOne(ctx context.Context, q QuerySpec) (Row, error)
	FetchMany(ctx context.Context, q QuerySpec) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, q QuerySpec, patch Row) (Row, error)
	Delete(ctx context.Context, q QuerySpec) error
}

// Table is the stage returned by from(table).
type Table interface {
	Select(columns string) Query
	Insert(row Row) InsertQuery
	Update(patch Row) UpdateFilter
	Delete() DeleteFilter
}

// Query is the read chain: filter, order and limit, then fetch one or many.
type Query interface {
	Eq(field string, value any) Query
	Match(fields map[string]any) Query
	Order(field string, opts OrderOpts) Query
	Limit(n int) Query
	Single(ctx context.Context) (Row, error)
	Many(ctx context.Context) ([]Row, error)
}

// InsertQuery is the stage after insert(row).
type InsertQuery interface {
	Select(columns string) InsertQuery
	Single(ctx context.Context) (Row, error)
}

// UpdateFilter forces a filter before an update may run.
type UpdateFilter interface {
	Eq(field string, value any) UpdateQuery
	Match(fields map[string]any) UpdateQuery
}

// UpdateQuery is a filtered update, resolved with or without the updated row.
type UpdateQuery interface {
	Select(columns string) UpdateQuery
	Single(ctx context.Context) (Row, error)
	Exec(ctx context.Context) error
}

// DeleteFilter forces a filter before a delete may run.
type DeleteFilter interface {
	Eq(field string, value any) DeleteQuery
	Match(fields map[string]any) DeleteQuery
}

// DeleteQuery is a filtered delete.
type DeleteQuery interface {
	Exec(ctx context.Context) error
}

// NewTable starts a chain for table against exec.
func NewTable(exec Executor, table string) Table {
	return &tableStage{exec: exec, table: table}
}

type tableStage struct {
	exec  Executor
	table string
}

func (t *tableStage) Select(columns string) Query {
	return &query{exec: t.exec, spec: QuerySpec{Table: t.table, Columns: columns}}
}

func (t *tableStage) Insert(row Row) InsertQuery {
	return &insertQuery{exec: t.exec, table: t.table, row: row.Clone()}
}

func (t *tableStage) Update(patch Row) UpdateFilter {
	return &updateQuery{exec: t.exec, spec: QuerySpec{Table: t.table}, patch: patch.Clone()}
}

func (t *tableStage) Delete() DeleteFilter {
	return &deleteQuery{exec: t.exec, spec: QuerySpec{Table: t.table}}
}

type query struct {
	exec Executor
	spec QuerySpec
}

func (q *query) Eq(field string, value any) Query {
	q.spec.Filter = Predicate{field: value}
	return q
}

func (q *query) Match(fields map[string]any) Query {
	q.spec.Filter = predicateFrom(fields)
	return q
}

func (q *query) Order(field string, opts OrderOpts) Query {
	q.spec.Order = &OrderSpec{Field: field, Ascending: opts.Ascending}
	return q
}

func (q *query) Limit(n int) Query {
	q.spec.Limit = n
	return q
}

func (q *query) Single(ctx context.Context) (Row, error) {
	return q.exec.FetchOne(ctx, q.spec)
}

func (q *query) Many(ctx context.Context) ([]Row, error) {
	return q.exec.FetchMany(ctx, q.spec)
}

type insertQuery struct {
	exec  Executor
	table string
	row   Row
}

func (q *insertQuery) Select(string) InsertQuery { return q }

func (q *insertQuery) Single(ctx context.Context) (Row, error) {
	return q.exec.Insert(ctx, q.table, q.row)
}

type updateQuery struct {
	exec  Executor
	spec  QuerySpec
	patch Row
}

func (q *updateQuery) Eq(field string, value any) UpdateQuery {
	q.spec.Filter = Predicate{field: value}
	return q
}

func (q *updateQuery) Match(fields map[string]any) UpdateQuery {
	q.spec.Filter = predicateFrom(fields)
	return q
}

func (q *updateQuery) Select(columns string) UpdateQuery {
	q.spec.Columns = columns
	return q
}

func (q *updateQuery) Single(ctx context.Context) (Row, error) {
	return q.exec.Update(ctx, q.spec, q.patch)
}

func (q *updateQuery) Exec(ctx context.Context) error {
	_, err := q.exec.Update(ctx, q.spec, q.patch)
	return err
}

type deleteQuery struct {
	exec Executor
	spec QuerySpec
}

func (q *deleteQuery) Eq(field string, value any) DeleteQuery {
	q.spec.Filter = Predicate{field: value}
	return q
}

func (q *deleteQuery) Match(fields map[string]any) DeleteQuery {
	q.spec.Filter = predicateFrom(fields)
	return q
}

func (q *deleteQuery) Exec(ctx context.Context) error {
	return q.exec.Delete(ctx, q.spec)
}

func predicateFrom(fields map[string]any) Predicate {
	p := make(Predicate, len(fields))
	for k, v := range fields {
		p[k] = v
	}
	return p
}
