package supabase

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiempos-digital/internal/backend"
)

func TestRenderSelect(t *testing.T) {
	q := backend.QuerySpec{
		Table:   backend.TableBets,
		Columns: "id, amount",
		Filter:  backend.Predicate{"user_id": "u1", "status": backend.BetPending},
	}
	sql, args := renderSelect("public", q, policies[backend.TableBets], 10)
	assert.Equal(t, `SELECT "id", "amount" FROM "public"."bets" WHERE "status" = $1 AND "user_id" = $2 ORDER BY "created_at" DESC LIMIT 10`, sql)
	assert.Equal(t, []any{backend.BetPending, "u1"}, args)
}

func TestRenderSelectUsesTableSortField(t *testing.T) {
	sql, args := renderSelect("", backend.QuerySpec{Table: backend.TableAuditEvents}, policies[backend.TableAuditEvents], 0)
	assert.Equal(t, `SELECT * FROM "audit_events" ORDER BY "timestamp" DESC`, sql)
	assert.Empty(t, args)

	q := backend.QuerySpec{
		Table: backend.TableLedger,
		Order: &backend.OrderSpec{Field: "amount", Ascending: true},
	}
	sql, _ = renderSelect("", q, policies[backend.TableLedger], 0)
	assert.Equal(t, `SELECT * FROM "ledger_transactions" ORDER BY "amount" ASC`, sql)
}

func TestRenderSelectQuotesHostileIdentifiers(t *testing.T) {
	q := backend.QuerySpec{Table: backend.TableBets, Filter: backend.Predicate{`x" OR 1=1 --`: "v"}}
	sql, _ := renderSelect("", q, policies[backend.TableBets], 0)
	assert.Contains(t, sql, `WHERE "x"" OR 1=1 --" = $1`)
}

func TestRenderInsertUpsertsNumberLimits(t *testing.T) {
	row := backend.Row{"draw_type": "Noche", "number": "00", "max_amount": int64(500)}
	sql, args := renderInsert("public", backend.TableNumberLimits, row, policies[backend.TableNumberLimits])
	assert.Equal(t, `INSERT INTO "public"."number_limits" ("draw_type", "max_amount", "number") VALUES ($1, $2, $3)`+
		` ON CONFLICT ("draw_type", "number") DO UPDATE SET "max_amount" = EXCLUDED."max_amount" RETURNING *`, sql)
	assert.Equal(t, []any{"Noche", int64(500), "00"}, args)

	sql, _ = renderInsert("", backend.TableNumberLimits, backend.Row{"draw_type": "Noche", "number": "00"}, policies[backend.TableNumberLimits])
	assert.Contains(t, sql, `DO UPDATE SET "draw_type" = EXCLUDED."draw_type" RETURNING *`)
}

func TestRenderInsertPlain(t *testing.T) {
	sql, args := renderInsert("", backend.TableBets, backend.Row{"user_id": "u1", "amount": int64(100)}, policies[backend.TableBets])
	assert.Equal(t, `INSERT INTO "bets" ("amount", "user_id") VALUES ($1, $2) RETURNING *`, sql)
	assert.Equal(t, []any{int64(100), "u1"}, args)

	sql, _ = renderInsert("", backend.TableBets, backend.Row{}, policies[backend.TableBets])
	assert.Equal(t, `INSERT INTO "bets" DEFAULT VALUES RETURNING *`, sql)
}

func TestRenderUpdateSkipsID(t *testing.T) {
	q := backend.QuerySpec{Table: backend.TableLotteryResults, Filter: backend.Predicate{"id": "r1"}}
	sql, args := renderUpdate("", q, backend.Row{"id": "other", "status": backend.DrawClosed})
	assert.Equal(t, `UPDATE "lottery_results" SET "status" = $1 WHERE "id" = $2 RETURNING *`, sql)
	assert.Equal(t, []any{backend.DrawClosed, "r1"}, args)
}

func TestRenderDeleteWithNullFilter(t *testing.T) {
	q := backend.QuerySpec{Table: backend.TableLotteryResults, Filter: backend.Predicate{"winningNumber": nil}}
	sql, args := renderDelete("public", q)
	assert.Equal(t, `DELETE FROM "public"."lottery_results" WHERE "winningNumber" IS NULL`, sql)
	assert.Empty(t, args)
}

func TestPolicyFor(t *testing.T) {
	_, err := policyFor("payouts", "list", false)
	assert.ErrorIs(t, err, backend.ErrUnsupported)

	_, err = policyFor(backend.TableLedger, "insert", false)
	assert.NoError(t, err)
	_, err = policyFor(backend.TableLedger, "update", true)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	_, err = policyFor(backend.TableAuditEvents, "delete", true)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{pgx.ErrNoRows, backend.ErrNotFound},
		{fmt.Errorf("read balance: %w", pgx.ErrNoRows), backend.ErrNotFound},
		{&pgconn.PgError{Code: pgUniqueViolation}, backend.ErrConflict},
		{&pgconn.PgError{Code: pgCheckViolation}, backend.ErrInvalid},
		{&pgconn.PgError{Code: pgUndefinedColumn}, backend.ErrInvalid},
		{&pgconn.PgError{Code: pgRaiseException}, backend.ErrUnsupported},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, translate("op", tc.err), tc.want, "error %v", tc.err)
	}

	plain := errors.New("connection reset")
	got := translate("query", plain)
	assert.ErrorIs(t, got, plain)
	assert.Equal(t, "internal", backend.ErrorKind(got))
}

func TestIsCedulaConflict(t *testing.T) {
	assert.True(t, isCedulaConflict(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "app_users_cedula_key"})))
	assert.False(t, isCedulaConflict(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "app_users_email_key"}))
	assert.False(t, isCedulaConflict(errors.New("boom")))
}

func TestNormalizeRow(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 7000, time.UTC)
	id := [16]byte{0x12, 0x34}
	row := normalizeRow(map[string]any{
		"created_at": at,
		"id":         id,
		"n":          int32(7),
		"s":          "x",
	})
	require.Len(t, row, 4)
	assert.Equal(t, "2026-02-03T04:05:06.000007Z", row["created_at"])
	assert.Equal(t, "12340000-0000-0000-0000-000000000000", row["id"])
	assert.Equal(t, int64(7), row["n"])
	assert.Equal(t, "x", row["s"])
}
