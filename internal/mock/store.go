package mock

import (
	"sync"

	"tiempos-digital/internal/backend"
)

// Collection names inside the store. app_users is split by role across the
// Cliente and Vendedor collections plus the singleton admin profile.
const (
	colClientes   = "clientes"
	colVendedores = "vendedores"
	colLedger     = "ledger"
	colAudit      = "audit"
	colResults    = "results"
	colLimits     = "limits"
	colBets       = "bets"
)

// Fixture names for the hand-authored identities.
const (
	FixtureVendor = "vendor"
	FixturePlayer = "player"
)

// Store owns every in-memory collection. It is built and seeded once by
// NewStore; mutations run under mu and never suspend mid-way.
type Store struct {
	mu          sync.Mutex
	collections map[string][]backend.Row
	admin       backend.Row
	fixtures    map[string]backend.Row
	ids         IDGenerator
	stamp       stamper
}

// StoreOptions configures NewStore.
type StoreOptions struct {
	IDs   IDGenerator
	Clock Clock
	Seed  SeedConfig
}

// NewStore builds the store and seeds it.
func NewStore(opts StoreOptions) *Store {
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	s := &Store{
		collections: map[string][]backend.Row{},
		fixtures:    map[string]backend.Row{},
		ids:         opts.IDs,
		stamp:       stamper{clock: opts.Clock},
	}
	seedStore(s, opts.Seed, opts.Clock.Now())
	return s
}

// Counts reports the number of rows per collection, admin included.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.collections)+1)
	for name, rows := range s.collections {
		out[name] = len(rows)
	}
	if s.admin != nil {
		out["admin"] = 1
	}
	return out
}

// Fixture returns a copy of a hand-authored identity's current state.
func (s *Store) Fixture(name string) (backend.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.fixtures[name]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Admin returns a copy of the singleton admin profile.
func (s *Store) Admin() backend.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin.Clone()
}

// The helpers below expect mu to be held.

func (s *Store) now() string {
	return backend.FormatTimestamp(s.stamp.next())
}

func (s *Store) rows(col string) []backend.Row {
	return s.collections[col]
}

func (s *Store) prepend(col string, row backend.Row) {
	rows := s.collections[col]
	out := make([]backend.Row, 0, len(rows)+1)
	out = append(out, row)
	s.collections[col] = append(out, rows...)
}

func (s *Store) appendSeed(col string, row backend.Row) {
	s.collections[col] = append(s.collections[col], row)
}

func (s *Store) removeAt(col string, idx int) backend.Row {
	rows := s.collections[col]
	row := rows[idx]
	s.collections[col] = append(rows[:idx:idx], rows[idx+1:]...)
	for name, fx := range s.fixtures {
		if sameRow(fx, row) {
			delete(s.fixtures, name)
		}
	}
	return row
}

// locate returns the first row in cols matching pred, in collection order.
func (s *Store) locate(cols []string, pred backend.Predicate) (string, int, backend.Row) {
	for _, col := range cols {
		for i, row := range s.collections[col] {
			if pred.Matches(row) {
				return col, i, row
			}
		}
	}
	return "", -1, nil
}

func sameRow(a, b backend.Row) bool {
	if a == nil || b == nil {
		return false
	}
	id := a.String("id")
	return id != "" && id == b.String("id")
}
