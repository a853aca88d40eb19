package mock

import (
	"context"
	"log/slog"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/kvstore"
	"tiempos-digital/internal/metrics"
)

// SessionKey is the default durable slot key for the emulator session.
const SessionKey = "tiempos-mock-auth-session"

// Options configures the emulator. Zero values pick the defaults: no
// latency, random UUIDs, the wall clock and an in-memory session slot.
type Options struct {
	Gate       Gate
	IDs        IDGenerator
	Clock      Clock
	Seed       SeedConfig
	Slot       kvstore.Store
	SessionKey string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Client is the in-memory substitute for the hosted backend.
type Client struct {
	store  *Store
	rules  *Rules
	engine *Engine
	auth   *SessionManager
	slot   kvstore.Store
}

var _ backend.Client = (*Client)(nil)

// New seeds a fresh store and wires the emulator around it.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	if opts.Slot == nil {
		opts.Slot = kvstore.NewMemory()
	}
	if opts.SessionKey == "" {
		opts.SessionKey = SessionKey
	}

	store := NewStore(StoreOptions{IDs: opts.IDs, Clock: opts.Clock, Seed: opts.Seed})
	rules := DefaultRules()
	slot := kvstore.NewSessionSlot(opts.Slot, opts.SessionKey, opts.Logger)

	return &Client{
		store:  store,
		rules:  rules,
		engine: NewEngine(store, rules, opts.Gate, opts.Logger, opts.Metrics),
		auth:   NewSessionManager(store, slot, opts.Gate, opts.IDs, opts.Logger, opts.Metrics),
		slot:   opts.Slot,
	}
}

// From starts a query chain against table.
func (c *Client) From(table string) backend.Table {
	return backend.NewTable(c.engine, table)
}

// Auth exposes the mock session manager.
func (c *Client) Auth() backend.Auth {
	return c.auth
}

// Ping checks the durable session slot.
func (c *Client) Ping(ctx context.Context) error {
	return c.slot.Ping(ctx)
}

// Close releases the durable session slot.
func (c *Client) Close() {
	_ = c.slot.Close()
}

// Store exposes the fixture store for inspection.
func (c *Client) Store() *Store {
	return c.store
}

// Tables lists the tables the emulator has rules for.
func (c *Client) Tables() []string {
	return c.rules.Tables()
}
