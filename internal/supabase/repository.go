// Package supabase talks to a live Supabase project: Postgres through pgx for
// table access and the GoTrue HTTP API for authentication.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/metrics"
)

const backendLabel = "supabase"

// Repository executes query builder specs against Supabase Postgres.
type Repository struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	schema  string
	metrics *metrics.Metrics
}

var _ backend.Executor = (*Repository)(nil)

// NewRepository opens a connection pool with the desired search_path.
func NewRepository(ctx context.Context, databaseURL, schema string, logger *slog.Logger, m *metrics.Metrics) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	// Supabase pooler (pgbouncer) does not keep prepared statements.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &Repository{
		pool:    pool,
		logger:  logger.With("component", "supabase_repo"),
		schema:  schema,
		metrics: m,
	}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// WithTx executes fn within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, fn)
}

// ApplyMigrations executes SQL files in lexicographical order, each in its
// own transaction.
func (r *Repository) ApplyMigrations(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(filesystem, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		err = r.WithTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, string(sqlBytes))
			return err
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
		r.logger.Debug("migration applied", "file", entry.Name())
	}
	return nil
}

// FetchOne returns the first row matching q after ordering.
func (r *Repository) FetchOne(ctx context.Context, q backend.QuerySpec) (row backend.Row, err error) {
	defer r.observe(q.Table, "single", time.Now(), &err)

	p, err := policyFor(q.Table, "single", false)
	if err != nil {
		return nil, err
	}
	sql, args := renderSelect(r.schema, q, p, 1)
	rows, err := r.query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, backend.Errorf(backend.ErrNotFound, "no %s row matches %v", q.Table, q.Filter)
	}
	return rows[0], nil
}

// FetchMany returns every row matching q, ordered and limited.
func (r *Repository) FetchMany(ctx context.Context, q backend.QuerySpec) (out []backend.Row, err error) {
	defer r.observe(q.Table, "list", time.Now(), &err)

	p, err := policyFor(q.Table, "list", false)
	if err != nil {
		return nil, err
	}
	sql, args := renderSelect(r.schema, q, p, q.Limit)
	return r.query(ctx, sql, args)
}

// Insert stores row and returns the stored version. Ledger rows without
// balance_before take the user's balance inside the same transaction.
func (r *Repository) Insert(ctx context.Context, table string, row backend.Row) (out backend.Row, err error) {
	defer r.observe(table, "insert", time.Now(), &err)

	p, err := policyFor(table, "insert", false)
	if err != nil {
		return nil, err
	}
	row = backend.NormalizeNumbers(row)
	if table == backend.TableAuditEvents {
		if !row.Has("timestamp") {
			row["timestamp"] = backend.FormatTimestamp(time.Now())
		}
		row["hash"] = backend.AuditHash(row)
	}

	err = r.WithTx(ctx, func(tx pgx.Tx) error {
		if table == backend.TableLedger && !row.Has("balance_before") {
			var balance int64
			lookup := fmt.Sprintf("SELECT balance FROM %s WHERE id = $1", qualified(r.schema, backend.TableAppUsers))
			if err := tx.QueryRow(ctx, lookup, row.String("user_id")).Scan(&balance); err != nil {
				return fmt.Errorf("read balance: %w", err)
			}
			row["balance_before"] = balance
			if amount, ok := row.Int("amount"); ok && !row.Has("balance_after") {
				row["balance_after"] = balance + amount
			}
		}
		sql, args := renderInsert(r.schema, table, row, p)
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return err
		}
		if len(collected) > 0 {
			out = normalizeRow(collected[0])
		}
		return nil
	})
	if err != nil {
		if table == backend.TableAppUsers && isCedulaConflict(err) {
			r.recordCollision(ctx, row)
		}
		return nil, translate(fmt.Sprintf("insert %s", table), err)
	}
	return out, nil
}

// Update applies patch to the rows matching q and returns the first result.
func (r *Repository) Update(ctx context.Context, q backend.QuerySpec, patch backend.Row) (out backend.Row, err error) {
	defer r.observe(q.Table, "update", time.Now(), &err)

	if _, err := policyFor(q.Table, "update", true); err != nil {
		return nil, err
	}
	if len(q.Filter) == 0 {
		return nil, backend.Errorf(backend.ErrInvalid, "update %s requires a filter", q.Table)
	}
	patch = patch.Clone()
	delete(patch, "id")
	if len(patch) == 0 {
		return r.FetchOne(ctx, q)
	}
	if q.Table == backend.TableAppUsers {
		patch["updated_at"] = backend.FormatTimestamp(time.Now())
	}
	sql, args := renderUpdate(r.schema, q, patch)
	rows, err := r.collect(ctx, sql, args)
	if err != nil {
		if q.Table == backend.TableAppUsers && isCedulaConflict(err) {
			attempted := patch
			if current, ferr := r.FetchOne(ctx, q); ferr == nil {
				current.Merge(patch)
				attempted = current
			}
			r.recordCollision(ctx, attempted)
		}
		return nil, translate(fmt.Sprintf("update %s", q.Table), err)
	}
	if len(rows) == 0 {
		return nil, backend.Errorf(backend.ErrNotFound, "no %s row matches %v", q.Table, q.Filter)
	}
	return rows[0], nil
}

// Delete removes the rows matching q.
func (r *Repository) Delete(ctx context.Context, q backend.QuerySpec) (err error) {
	defer r.observe(q.Table, "delete", time.Now(), &err)

	if _, err := policyFor(q.Table, "delete", true); err != nil {
		return err
	}
	if len(q.Filter) == 0 {
		return backend.Errorf(backend.ErrInvalid, "delete %s requires a filter", q.Table)
	}
	sql, args := renderDelete(r.schema, q)
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return translate(fmt.Sprintf("delete %s", q.Table), err)
	}
	if tag.RowsAffected() == 0 {
		return backend.Errorf(backend.ErrNotFound, "no %s row matches %v", q.Table, q.Filter)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, sql string, args []any) ([]backend.Row, error) {
	out, err := r.collect(ctx, sql, args)
	if err != nil {
		return nil, translate("query", err)
	}
	return out, nil
}

// collect runs sql and returns the normalized rows with the driver error
// left untranslated.
func (r *Repository) collect(ctx context.Context, sql string, args []any) ([]backend.Row, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Row, len(collected))
	for i, m := range collected {
		out[i] = normalizeRow(m)
	}
	return out, nil
}

func (r *Repository) recordCollision(ctx context.Context, attempted backend.Row) {
	q := backend.QuerySpec{
		Table:  backend.TableAppUsers,
		Filter: backend.Predicate{"cedula": attempted.String("cedula")},
	}
	p, _ := policyFor(backend.TableAppUsers, "single", false)
	sql, args := renderSelect(r.schema, q, p, 1)
	existing, err := r.query(ctx, sql, args)
	if err != nil || len(existing) == 0 {
		r.logger.Warn("cedula conflict without existing owner", "cedula", attempted.String("cedula"), "error", err)
		return
	}
	if _, err := r.Insert(ctx, backend.TableAuditEvents, backend.IdentityCollision(existing[0], attempted)); err != nil {
		r.logger.Error("failed to record identity collision", "error", err)
	}
}

func (r *Repository) observe(table, op string, started time.Time, errp *error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveBackend(backendLabel, table, op, backend.ErrorKind(*errp), time.Since(started))
}

// Postgres error classes mapped onto the backend error kinds.
const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
	pgUndefinedColumn     = "42703"
	pgUndefinedTable      = "42P01"
	pgRaiseException      = "P0001"
)

func translate(action string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.Errorf(backend.ErrNotFound, "%s: no rows", action)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return backend.Errorf(backend.ErrConflict, "%s: %s", action, pgErr.Message)
		case pgCheckViolation, pgNotNullViolation, pgForeignKeyViolation, pgInvalidText, pgUndefinedColumn:
			return backend.Errorf(backend.ErrInvalid, "%s: %s", action, pgErr.Message)
		case pgUndefinedTable, pgRaiseException:
			return backend.Errorf(backend.ErrUnsupported, "%s: %s", action, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func isCedulaConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "app_users_cedula_key"
}

// normalizeRow converts driver values into the shapes the emulator produces.
func normalizeRow(m map[string]any) backend.Row {
	row := make(backend.Row, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case time.Time:
			row[k] = backend.FormatTimestamp(val)
		case [16]byte:
			row[k] = uuid.UUID(val).String()
		case int32:
			row[k] = int64(val)
		case int16:
			row[k] = int64(val)
		default:
			row[k] = val
		}
	}
	return row
}
