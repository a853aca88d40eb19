package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures the QuerySpec each terminal receives.
type recorder struct {
	spec  QuerySpec
	table string
	row   Row
	patch Row
	calls []string
}

func (r *recorder) FetchOne(_ context.Context, q QuerySpec) (Row, error) {
	r.calls = append(r.calls, "one")
	r.spec = q
	return Row{"id": "x"}, nil
}

func (r *recorder) FetchMany(_ context.Context, q QuerySpec) ([]Row, error) {
	r.calls = append(r.calls, "many")
	r.spec = q
	return nil, nil
}

func (r *recorder) Insert(_ context.Context, table string, row Row) (Row, error) {
	r.calls = append(r.calls, "insert")
	r.table, r.row = table, row
	return row, nil
}

func (r *recorder) Update(_ context.Context, q QuerySpec, patch Row) (Row, error) {
	r.calls = append(r.calls, "update")
	r.spec, r.patch = q, patch
	return patch, nil
}

func (r *recorder) Delete(_ context.Context, q QuerySpec) error {
	r.calls = append(r.calls, "delete")
	r.spec = q
	return nil
}

func TestSelectChainRecordsQuery(t *testing.T) {
	rec := &recorder{}
	_, err := NewTable(rec, TableBets).Select("id, amount").
		Eq("user_id", "u1").
		Order("amount", OrderOpts{Ascending: true}).
		Limit(5).
		Many(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TableBets, rec.spec.Table)
	assert.Equal(t, "id, amount", rec.spec.Columns)
	assert.Equal(t, Predicate{"user_id": "u1"}, rec.spec.Filter)
	require.NotNil(t, rec.spec.Order)
	assert.Equal(t, OrderSpec{Field: "amount", Ascending: true}, *rec.spec.Order)
	assert.Equal(t, 5, rec.spec.Limit)
}

func TestLaterFilterReplacesEarlier(t *testing.T) {
	rec := &recorder{}
	_, err := NewTable(rec, TableAppUsers).Select("*").
		Eq("email", "a@b.c").
		Match(map[string]any{"role": RoleCliente, "status": StatusActive}).
		Single(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Predicate{"role": RoleCliente, "status": StatusActive}, rec.spec.Filter)

	_, err = NewTable(rec, TableAppUsers).Select("*").
		Match(map[string]any{"role": RoleCliente}).
		Eq("id", "u9").
		Single(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Predicate{"id": "u9"}, rec.spec.Filter)
}

func TestMatchCopiesCallerMap(t *testing.T) {
	rec := &recorder{}
	fields := map[string]any{"role": RoleVendedor}
	q := NewTable(rec, TableAppUsers).Select("*").Match(fields)
	fields["role"] = RoleCliente

	_, err := q.Many(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RoleVendedor, rec.spec.Filter["role"])
}

func TestInsertClonesPayload(t *testing.T) {
	rec := &recorder{}
	payload := Row{"amount": int64(100), "meta": map[string]any{"k": "v"}}
	q := NewTable(rec, TableLedger).Insert(payload).Select("*")
	payload["meta"].(map[string]any)["k"] = "changed"

	_, err := q.Single(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TableLedger, rec.table)
	assert.Equal(t, "v", rec.row["meta"].(map[string]any)["k"])
}

func TestUpdateAndDeleteCarryFilter(t *testing.T) {
	rec := &recorder{}
	ctx := context.Background()

	require.NoError(t, NewTable(rec, TableLotteryResults).Update(Row{"status": DrawClosed}).Eq("id", "r1").Exec(ctx))
	assert.Equal(t, Predicate{"id": "r1"}, rec.spec.Filter)
	assert.Equal(t, Row{"status": DrawClosed}, rec.patch)

	require.NoError(t, NewTable(rec, TableBets).Delete().Match(map[string]any{"id": "b1"}).Exec(ctx))
	assert.Equal(t, Predicate{"id": "b1"}, rec.spec.Filter)
	assert.Equal(t, []string{"update", "delete"}, rec.calls)
}

func TestEffectiveOrderDefaultsToDescending(t *testing.T) {
	q := QuerySpec{Table: TableBets}
	assert.Equal(t, OrderSpec{Field: DefaultOrderField}, q.EffectiveOrder(""))
	assert.Equal(t, OrderSpec{Field: "timestamp"}, q.EffectiveOrder("timestamp"))

	q.Order = &OrderSpec{Field: "amount", Ascending: true}
	assert.Equal(t, OrderSpec{Field: "amount", Ascending: true}, q.EffectiveOrder("timestamp"))
}

func TestSortRowsIsStable(t *testing.T) {
	rows := []Row{
		{"id": "a", "n": int64(2)},
		{"id": "b", "n": int64(1)},
		{"id": "c", "n": int64(2)},
		{"id": "d"},
	}
	SortRows(rows, OrderSpec{Field: "n"})

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.String("id")
	}
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids)
}

func TestPredicateMatches(t *testing.T) {
	row := Row{"amount": int64(500), "number": "07", "isReventado": false, "winningNumber": nil}

	assert.True(t, Predicate{}.Matches(row))
	assert.True(t, Predicate{"amount": 500}.Matches(row))
	assert.True(t, Predicate{"amount": "500"}.Matches(row))
	assert.True(t, Predicate{"number": "07", "isReventado": "false"}.Matches(row))
	assert.True(t, Predicate{"winningNumber": nil}.Matches(row))
	assert.False(t, Predicate{"number": "7"}.Matches(row))
	assert.False(t, Predicate{"missing": "x"}.Matches(row))
}
