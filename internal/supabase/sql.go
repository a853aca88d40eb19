package supabase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"tiempos-digital/internal/backend"
)

// tablePolicy mirrors the emulator's rules where they affect SQL shape.
type tablePolicy struct {
	conflict  []string
	sortField string
	immutable bool
}

var policies = map[string]tablePolicy{
	backend.TableAppUsers:       {},
	backend.TableLedger:         {immutable: true},
	backend.TableAuditEvents:    {immutable: true, sortField: "timestamp"},
	backend.TableLotteryResults: {},
	backend.TableNumberLimits:   {conflict: []string{"draw_type", "number"}},
	backend.TableBets:           {},
}

func policyFor(table, op string, mutating bool) (tablePolicy, error) {
	p, ok := policies[table]
	if !ok {
		return tablePolicy{}, backend.Errorf(backend.ErrUnsupported, "%s not supported for table %q", op, table)
	}
	if mutating && p.immutable {
		return tablePolicy{}, backend.Errorf(backend.ErrUnsupported, "%s not supported for table %q", op, table)
	}
	return p, nil
}

func (p tablePolicy) defaultSort() string {
	if p.sortField != "" {
		return p.sortField
	}
	return backend.DefaultOrderField
}

// statement accumulates SQL text and its positional arguments.
type statement struct {
	sb   strings.Builder
	args []any
}

func (s *statement) write(parts ...string) {
	for _, p := range parts {
		s.sb.WriteString(p)
	}
}

func (s *statement) arg(v any) string {
	s.args = append(s.args, v)
	return fmt.Sprintf("$%d", len(s.args))
}

func (s *statement) where(filter backend.Predicate) {
	if len(filter) == 0 {
		return
	}
	s.write(" WHERE ")
	for i, field := range sortedKeys(filter) {
		if i > 0 {
			s.write(" AND ")
		}
		if filter[field] == nil {
			s.write(quote(field), " IS NULL")
			continue
		}
		s.write(quote(field), " = ", s.arg(filter[field]))
	}
}

func qualified(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func quote(column string) string {
	return pgx.Identifier{column}.Sanitize()
}

func columnList(columns string) string {
	columns = strings.TrimSpace(columns)
	if columns == "" || columns == "*" {
		return "*"
	}
	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, quote(p))
		}
	}
	if len(out) == 0 {
		return "*"
	}
	return strings.Join(out, ", ")
}

func renderSelect(schema string, q backend.QuerySpec, p tablePolicy, limit int) (string, []any) {
	var st statement
	st.write("SELECT ", columnList(q.Columns), " FROM ", qualified(schema, q.Table))
	st.where(q.Filter)
	order := q.EffectiveOrder(p.defaultSort())
	dir := "DESC"
	if order.Ascending {
		dir = "ASC"
	}
	st.write(" ORDER BY ", quote(order.Field), " ", dir)
	if limit > 0 {
		st.write(fmt.Sprintf(" LIMIT %d", limit))
	}
	return st.sb.String(), st.args
}

func renderInsert(schema, table string, row backend.Row, p tablePolicy) (string, []any) {
	var st statement
	cols := sortedKeys(row)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		params[i] = st.arg(row[c])
	}
	st.write("INSERT INTO ", qualified(schema, table))
	if len(cols) == 0 {
		st.write(" DEFAULT VALUES")
	} else {
		st.write(" (", strings.Join(quoted, ", "), ") VALUES (", strings.Join(params, ", "), ")")
	}
	if len(p.conflict) > 0 {
		keys := make([]string, len(p.conflict))
		for i, k := range p.conflict {
			keys[i] = quote(k)
		}
		var sets []string
		for _, c := range cols {
			if c == "id" || contains(p.conflict, c) {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quote(c), quote(c)))
		}
		st.write(" ON CONFLICT (", strings.Join(keys, ", "), ")")
		if len(sets) == 0 {
			// Touch a key column so RETURNING still yields the existing row.
			st.write(fmt.Sprintf(" DO UPDATE SET %s = EXCLUDED.%s", keys[0], keys[0]))
		} else {
			st.write(" DO UPDATE SET ", strings.Join(sets, ", "))
		}
	}
	st.write(" RETURNING *")
	return st.sb.String(), st.args
}

func renderUpdate(schema string, q backend.QuerySpec, patch backend.Row) (string, []any) {
	var st statement
	cols := sortedKeys(patch)
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "id" {
			continue
		}
		sets = append(sets, quote(c)+" = "+st.arg(patch[c]))
	}
	st.write("UPDATE ", qualified(schema, q.Table), " SET ", strings.Join(sets, ", "))
	st.where(q.Filter)
	st.write(" RETURNING ", columnList(q.Columns))
	return st.sb.String(), st.args
}

func renderDelete(schema string, q backend.QuerySpec) (string, []any) {
	var st statement
	st.write("DELETE FROM ", qualified(schema, q.Table))
	st.where(q.Filter)
	return st.sb.String(), st.args
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
