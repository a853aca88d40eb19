package mock

import (
	"slices"

	"tiempos-digital/internal/backend"
)

// capability is one terminal a table rule allows.
type capability uint8

const (
	capLocate capability = 1 << iota
	capList
	capInsert
	capUpdate
	capDelete

	capAll      = capLocate | capList | capInsert | capUpdate | capDelete
	capAppendOn = capLocate | capList | capInsert
)

func (c capability) String() string {
	switch c {
	case capLocate:
		return "single"
	case capList:
		return "select"
	case capInsert:
		return "insert"
	case capUpdate:
		return "update"
	case capDelete:
		return "delete"
	default:
		return "operation"
	}
}

// tableRule is the policy for one logical table.
type tableRule struct {
	name string
	caps capability
	// collections are searched in order; the first is the primary one.
	collections []string
	// includeAdmin appends the singleton admin profile to reads and updates.
	includeAdmin bool
	// route picks the target collection of an insert; nil means collections[0].
	route func(row backend.Row) (string, error)
	// defaults fills missing fields on insert after id and timestamp are set.
	defaults       func(s *Store, row backend.Row)
	validateInsert func(s *Store, row backend.Row) error
	validateUpdate func(current, patch backend.Row) error
	// upsertKey turns inserts into insert-or-merge on these fields.
	upsertKey []string
	// unique lists the field sets no two rows may share, checked on insert
	// and on updates that touch them.
	unique         []uniqueKey
	timestampField string
	sortField      string
	honorLimit     bool
	touchUpdatedAt bool
}

// uniqueKey is one uniqueness constraint. onCollision, when set, runs before
// the conflict is returned.
type uniqueKey struct {
	fields      []string
	onCollision func(s *Store, existing, attempted backend.Row)
}

func unique(fields ...string) uniqueKey {
	return uniqueKey{fields: fields}
}

func (t *tableRule) createdField() string {
	if t.timestampField != "" {
		return t.timestampField
	}
	return backend.DefaultOrderField
}

func (t *tableRule) defaultSort() string {
	if t.sortField != "" {
		return t.sortField
	}
	return t.createdField()
}

func (t *tableRule) target(row backend.Row) (string, error) {
	if t.route == nil {
		return t.collections[0], nil
	}
	return t.route(row)
}

// scan returns every row visible to reads of this table, in search order.
func (t *tableRule) scan(s *Store) []backend.Row {
	var out []backend.Row
	for _, col := range t.collections {
		out = append(out, s.rows(col)...)
	}
	if t.includeAdmin && s.admin != nil {
		out = append(out, s.admin)
	}
	return out
}

// Rules maps table identifiers to their policy. Unregistered identifiers
// resolve to ErrUnsupported for every operation.
type Rules struct {
	tables map[string]*tableRule
}

func (r *Rules) lookup(table string, c capability) (*tableRule, error) {
	rule, ok := r.tables[table]
	if !ok {
		return nil, backend.Errorf(backend.ErrUnsupported, "%s not supported for table %q", c, table)
	}
	if rule.caps&c == 0 {
		return nil, backend.Errorf(backend.ErrUnsupported, "%s not supported for table %q", c, table)
	}
	return rule, nil
}

// Tables lists the registered identifiers.
func (r *Rules) Tables() []string {
	out := make([]string, 0, len(r.tables))
	for name := range r.tables {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// appUserKeys mirrors the unique columns of app_users. A taken cedula is
// audited as an identity collision.
var appUserKeys = []uniqueKey{
	unique("email"),
	unique("auth_uid"),
	{fields: []string{"cedula"}, onCollision: auditIdentityCollision},
}

// DefaultRules registers the six lottery administration tables.
func DefaultRules() *Rules {
	rules := []*tableRule{
		{
			name:           backend.TableAppUsers,
			caps:           capAll,
			collections:    []string{colClientes, colVendedores},
			includeAdmin:   true,
			route:          routeByRole,
			defaults:       appUserDefaults,
			unique:         appUserKeys,
			touchUpdatedAt: true,
		},
		{
			name:           backend.TableLedger,
			caps:           capAppendOn,
			collections:    []string{colLedger},
			defaults:       ledgerDefaults,
			validateInsert: checkLedger,
			honorLimit:     true,
		},
		{
			name:           backend.TableAuditEvents,
			caps:           capAppendOn,
			collections:    []string{colAudit},
			defaults:       auditDefaults,
			timestampField: "timestamp",
			honorLimit:     true,
		},
		{
			name:           backend.TableLotteryResults,
			caps:           capAll,
			collections:    []string{colResults},
			defaults:       resultDefaults,
			validateUpdate: checkResultTransition,
			unique:         []uniqueKey{unique("date", "drawTime")},
		},
		{
			name:           backend.TableNumberLimits,
			caps:           capAll,
			collections:    []string{colLimits},
			validateInsert: requireFields("draw_type", "number"),
			upsertKey:      []string{"draw_type", "number"},
			unique:         []uniqueKey{unique("draw_type", "number")},
		},
		{
			name:           backend.TableBets,
			caps:           capAll,
			collections:    []string{colBets},
			defaults:       betDefaults,
			validateInsert: checkBet,
			honorLimit:     true,
		},
	}
	out := &Rules{tables: make(map[string]*tableRule, len(rules))}
	for _, r := range rules {
		out.tables[r.name] = r
	}
	return out
}

func routeByRole(row backend.Row) (string, error) {
	switch row.String("role") {
	case backend.RoleCliente:
		return colClientes, nil
	case backend.RoleVendedor:
		return colVendedores, nil
	case backend.RoleSuperAdmin:
		return "", backend.Errorf(backend.ErrInvalid, "the admin profile is a singleton")
	default:
		return "", backend.Errorf(backend.ErrInvalid, "unknown role %q", row.String("role"))
	}
}

func appUserDefaults(s *Store, row backend.Row) {
	setDefault(row, "role", backend.RoleCliente)
	setDefault(row, "auth_uid", s.ids.NewID())
	setDefault(row, "balance", int64(0))
	setDefault(row, "currency", currencyCRC)
	setDefault(row, "status", backend.StatusActive)
	if _, ok := row["issuer_id"]; !ok {
		row["issuer_id"] = nil
	}
	row["updated_at"] = row["created_at"]
}

// auditIdentityCollision records a second identity claimed for an existing
// cedula.
func auditIdentityCollision(s *Store, existing, attempted backend.Row) {
	ev := backend.IdentityCollision(existing, attempted)
	ev["id"] = s.ids.NewID()
	ev["timestamp"] = s.now()
	auditDefaults(s, ev)
	s.prepend(colAudit, ev)
}

func ledgerDefaults(s *Store, row backend.Row) {
	setDefault(row, "ticket_code", shortCode(s.ids, "TX"))
	setDefault(row, "reference_id", "")
	setDefault(row, "meta", map[string]any{})
}

// checkLedger enforces balance_after = balance_before + amount and that the
// sign of amount agrees with type. A missing balance_before is taken from
// the user's current balance.
func checkLedger(s *Store, row backend.Row) error {
	amount, ok := row.Int("amount")
	if !ok {
		return backend.Errorf(backend.ErrInvalid, "amount must be an integer")
	}
	switch row.String("type") {
	case backend.TxCredit:
		if amount < 0 {
			return backend.Errorf(backend.ErrInvalid, "credit amount must not be negative")
		}
	case backend.TxDebit:
		if amount > 0 {
			return backend.Errorf(backend.ErrInvalid, "debit amount must not be positive")
		}
	default:
		return backend.Errorf(backend.ErrInvalid, "unknown transaction type %q", row.String("type"))
	}

	before, ok := row.Int("balance_before")
	if !row.Has("balance_before") {
		before = 0
		users := append(append([]backend.Row{}, s.rows(colClientes)...), s.rows(colVendedores)...)
		users = append(users, s.admin)
		for _, u := range users {
			if u != nil && u.String("id") == row.String("user_id") {
				before, _ = u.Int("balance")
				break
			}
		}
	} else if !ok {
		return backend.Errorf(backend.ErrInvalid, "balance_before must be an integer")
	}

	after := before + amount
	if row.Has("balance_after") {
		if got, ok := row.Int("balance_after"); !ok || got != after {
			return backend.Errorf(backend.ErrInvalid, "balance_after must equal balance_before + amount")
		}
	}
	row["amount"] = amount
	row["balance_before"] = before
	row["balance_after"] = after
	return nil
}

func auditDefaults(s *Store, row backend.Row) {
	setDefault(row, "event_id", shortCode(s.ids, "EVT"))
	setDefault(row, "severity", backend.SeverityInfo)
	setDefault(row, "metadata", map[string]any{})
	for _, f := range []string{"actor_id", "actor_role", "actor_name", "ip_address", "device_fingerprint", "type", "action", "target_resource"} {
		setDefault(row, f, "")
	}
	row["hash"] = backend.AuditHash(row)
}

func resultDefaults(_ *Store, row backend.Row) {
	setDefault(row, "status", backend.DrawOpen)
	setDefault(row, "isReventado", false)
	if _, ok := row["winningNumber"]; !ok {
		row["winningNumber"] = nil
	}
}

// publishFields are the only fields an OPEN draw accepts.
var publishFields = []string{"winningNumber", "isReventado", "status"}

// checkResultTransition allows publication only. An OPEN draw may take a
// winning number, the reventado flag and the move to CLOSED; a CLOSED draw
// accepts no change. Fields patched to their current value are ignored.
func checkResultTransition(current, patch backend.Row) error {
	closed := current.String("status") == backend.DrawClosed
	for _, field := range sortedFields(patch) {
		if backend.ValuesEqual(current[field], patch[field]) {
			continue
		}
		if closed {
			return backend.Errorf(backend.ErrInvalid, "draw %s is closed: %s cannot change", current.String("id"), field)
		}
		if !slices.Contains(publishFields, field) {
			return backend.Errorf(backend.ErrInvalid, "draw field %s cannot change after creation", field)
		}
	}
	if next, ok := patch["status"]; ok && next != backend.DrawOpen && next != backend.DrawClosed {
		return backend.Errorf(backend.ErrInvalid, "unknown draw status %v", next)
	}
	return nil
}

func betDefaults(_ *Store, row backend.Row) {
	row["status"] = backend.BetPending
}

func checkBet(_ *Store, row backend.Row) error {
	if row.String("user_id") == "" {
		return backend.Errorf(backend.ErrInvalid, "bet requires user_id")
	}
	if amount, ok := row.Int("amount"); !ok || amount <= 0 {
		return backend.Errorf(backend.ErrInvalid, "bet amount must be a positive integer")
	}
	return nil
}

func requireFields(fields ...string) func(*Store, backend.Row) error {
	return func(_ *Store, row backend.Row) error {
		for _, f := range fields {
			if !row.Has(f) {
				return backend.Errorf(backend.ErrInvalid, "%s is required", f)
			}
		}
		return nil
	}
}

func setDefault(row backend.Row, key string, value any) {
	if !row.Has(key) {
		row[key] = value
	}
}

func sortedFields(row backend.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
