package mock

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/metrics"
)

const backendLabel = "emulator"

// Engine executes builder terminals against the Store. Each terminal waits on
// the latency gate first and then applies its whole effect under the store
// lock, so a mutation is never observed half-done. Concurrent calls complete
// in timer order and the last mutation to run wins.
type Engine struct {
	store   *Store
	rules   *Rules
	gate    Gate
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ backend.Executor = (*Engine)(nil)

// NewEngine wires an engine. metrics may be nil.
func NewEngine(store *Store, rules *Rules, gate Gate, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		rules:   rules,
		gate:    gate,
		logger:  logger.With("component", "emulator"),
		metrics: m,
	}
}

// FetchOne returns the first row matching the filter after ordering.
func (e *Engine) FetchOne(ctx context.Context, q backend.QuerySpec) (row backend.Row, err error) {
	defer e.observe(q.Table, "single", time.Now(), &err)

	rule, err := e.rules.lookup(q.Table, capLocate)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Wait(ctx, OpRead); err != nil {
		return nil, err
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	matches := filterRows(rule.scan(e.store), q.Filter)
	if len(matches) == 0 {
		return nil, backend.Errorf(backend.ErrNotFound, "no %s row matches %v", q.Table, map[string]any(q.Filter))
	}
	backend.SortRows(matches, q.EffectiveOrder(rule.defaultSort()))
	return matches[0].Clone(), nil
}

// FetchMany returns every matching row, ordered.
func (e *Engine) FetchMany(ctx context.Context, q backend.QuerySpec) (rows []backend.Row, err error) {
	defer e.observe(q.Table, "select", time.Now(), &err)

	rule, err := e.rules.lookup(q.Table, capList)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Wait(ctx, OpList); err != nil {
		return nil, err
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	matches := filterRows(rule.scan(e.store), q.Filter)
	backend.SortRows(matches, q.EffectiveOrder(rule.defaultSort()))
	if rule.honorLimit && q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	out := make([]backend.Row, len(matches))
	for i, m := range matches {
		out[i] = m.Clone()
	}
	return out, nil
}

// Insert appends a row at the head of its target collection, or merges it
// into the existing row for upsert tables.
func (e *Engine) Insert(ctx context.Context, table string, payload backend.Row) (row backend.Row, err error) {
	defer e.observe(table, "insert", time.Now(), &err)

	rule, err := e.rules.lookup(table, capInsert)
	if err != nil {
		e.logger.Warn("insert rejected", "table", table, "error", err)
		return nil, err
	}
	if err := e.gate.Wait(ctx, OpWrite); err != nil {
		return nil, err
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	row = backend.NormalizeNumbers(payload.Clone())

	if len(rule.upsertKey) > 0 {
		if rule.validateInsert != nil {
			if err := rule.validateInsert(e.store, row); err != nil {
				return nil, err
			}
		}
		key := backend.Predicate{}
		for _, f := range rule.upsertKey {
			key[f] = row[f]
		}
		if _, _, existing := e.store.locate(rule.collections, key); existing != nil {
			delete(row, "id")
			delete(row, rule.createdField())
			existing.Merge(row)
			e.logger.Debug("upsert merged", "table", table, "id", existing.String("id"))
			return existing.Clone(), nil
		}
	}

	if id := row.String("id"); id == "" {
		row["id"] = e.store.ids.NewID()
	} else if dup := firstMatch(rule.scan(e.store), backend.Predicate{"id": id}); dup != nil {
		return nil, backend.Errorf(backend.ErrConflict, "%s row %s already exists", table, id)
	}
	row[rule.createdField()] = e.store.now()
	if rule.defaults != nil {
		rule.defaults(e.store, row)
	}

	col, err := rule.target(row)
	if err != nil {
		e.logger.Warn("insert rejected", "table", table, "error", err)
		return nil, err
	}
	if rule.validateInsert != nil && len(rule.upsertKey) == 0 {
		if err := rule.validateInsert(e.store, row); err != nil {
			e.logger.Warn("insert rejected", "table", table, "error", err)
			return nil, err
		}
	}
	if err := e.checkUnique(rule, row, nil, nil); err != nil {
		e.logger.Warn("insert rejected", "table", table, "error", err)
		return nil, err
	}

	e.store.prepend(col, row)
	e.logger.Debug("row inserted", "table", table, "collection", col, "id", row.String("id"))
	return row.Clone(), nil
}

// Update merges patch into the first row matching the filter. The search
// covers the table's collections, then the admin profile, then the
// hand-authored fixtures.
func (e *Engine) Update(ctx context.Context, q backend.QuerySpec, patch backend.Row) (row backend.Row, err error) {
	defer e.observe(q.Table, "update", time.Now(), &err)

	rule, err := e.rules.lookup(q.Table, capUpdate)
	if err != nil {
		e.logger.Warn("update rejected", "table", q.Table, "error", err)
		return nil, err
	}
	if len(q.Filter) == 0 {
		return nil, backend.Errorf(backend.ErrInvalid, "update on %s requires a filter", q.Table)
	}
	if err := e.gate.Wait(ctx, OpWrite); err != nil {
		return nil, err
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	col, idx, target := e.store.locate(rule.collections, q.Filter)
	if target == nil && rule.includeAdmin {
		if e.store.admin != nil && q.Filter.Matches(e.store.admin) {
			target = e.store.admin
		} else {
			for _, fx := range e.store.fixtures {
				if q.Filter.Matches(fx) {
					target = fx
					break
				}
			}
		}
	}
	if target == nil {
		return nil, backend.Errorf(backend.ErrNotFound, "update target not found in %s for %v", q.Table, map[string]any(q.Filter))
	}

	patch = backend.NormalizeNumbers(patch.Clone())
	delete(patch, "id")
	if sameRow(target, e.store.admin) && patch.Has("role") && patch.String("role") != backend.RoleSuperAdmin {
		return nil, backend.Errorf(backend.ErrInvalid, "the admin profile keeps the %s role", backend.RoleSuperAdmin)
	}
	if rule.validateUpdate != nil {
		if err := rule.validateUpdate(target, patch); err != nil {
			e.logger.Warn("update rejected", "table", q.Table, "error", err)
			return nil, err
		}
	}
	merged := target.Clone()
	merged.Merge(patch)
	if err := e.checkUnique(rule, merged, target, patch); err != nil {
		e.logger.Warn("update rejected", "table", q.Table, "error", err)
		return nil, err
	}
	var dest string
	if rule.route != nil && col != "" && patch.Has("role") {
		if dest, err = rule.route(merged); err != nil {
			return nil, err
		}
	}

	target.Merge(patch)
	if rule.touchUpdatedAt {
		target["updated_at"] = e.store.now()
	}
	if dest != "" && dest != col {
		e.store.collections[col] = append(e.store.collections[col][:idx:idx], e.store.collections[col][idx+1:]...)
		e.store.prepend(dest, target)
	}
	e.logger.Debug("row updated", "table", q.Table, "id", target.String("id"))
	return target.Clone(), nil
}

// Delete removes the first row matching the filter from its collection.
func (e *Engine) Delete(ctx context.Context, q backend.QuerySpec) (err error) {
	defer e.observe(q.Table, "delete", time.Now(), &err)

	rule, err := e.rules.lookup(q.Table, capDelete)
	if err != nil {
		e.logger.Warn("delete rejected", "table", q.Table, "error", err)
		return err
	}
	if len(q.Filter) == 0 {
		return backend.Errorf(backend.ErrInvalid, "delete on %s requires a filter", q.Table)
	}
	if err := e.gate.Wait(ctx, OpWrite); err != nil {
		return err
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	col, idx, target := e.store.locate(rule.collections, q.Filter)
	if target == nil {
		return backend.Errorf(backend.ErrNotFound, "no %s row to delete for %v", q.Table, map[string]any(q.Filter))
	}
	e.store.removeAt(col, idx)
	e.logger.Debug("row deleted", "table", q.Table, "id", target.String("id"))
	return nil
}

func (e *Engine) observe(table, op string, start time.Time, errp *error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveBackend(backendLabel, table, op, backend.ErrorKind(*errp), time.Since(start))
}

// checkUnique rejects row when another row of the table already holds one
// of its unique keys. self is skipped so an update can keep its own values.
// With a non-nil patch only the keys the patch touches are checked. Keys
// with an empty field are not enforced.
func (e *Engine) checkUnique(rule *tableRule, row, self, patch backend.Row) error {
	for _, key := range rule.unique {
		if patch != nil && !slices.ContainsFunc(key.fields, patch.Has) {
			continue
		}
		pred := backend.Predicate{}
		for _, f := range key.fields {
			if v := row[f]; v != nil && v != "" {
				pred[f] = v
			}
		}
		if len(pred) < len(key.fields) {
			continue
		}
		for _, other := range rule.scan(e.store) {
			if sameRow(other, self) || !pred.Matches(other) {
				continue
			}
			if key.onCollision != nil {
				key.onCollision(e.store, other, row)
			}
			return backend.Errorf(backend.ErrConflict, "%s %v already held by %s", rule.name, map[string]any(pred), other.String("id"))
		}
	}
	return nil
}

func firstMatch(rows []backend.Row, pred backend.Predicate) backend.Row {
	for _, r := range rows {
		if pred.Matches(r) {
			return r
		}
	}
	return nil
}

func filterRows(rows []backend.Row, pred backend.Predicate) []backend.Row {
	out := make([]backend.Row, 0, len(rows))
	for _, r := range rows {
		if pred.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
