package supabase

import (
	"context"
	"log/slog"
	"time"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/kvstore"
	"tiempos-digital/internal/metrics"
)

// Config holds the connection details of a live project.
type Config struct {
	URL         string
	AnonKey     string
	DatabaseURL string
	Schema      string
	AuthTimeout time.Duration
	SessionKey  string
}

// Client is the live counterpart of the emulator.
type Client struct {
	repo *Repository
	auth *Auth
	slot kvstore.Store
}

var _ backend.Client = (*Client)(nil)

// SessionKey is the durable slot key for live sessions.
const SessionKey = "tiempos-auth-session"

// New connects to Postgres and wires the GoTrue client. slot keeps the
// session and is closed with the client.
func New(ctx context.Context, cfg Config, slot kvstore.Store, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	repo, err := NewRepository(ctx, cfg.DatabaseURL, cfg.Schema, logger, m)
	if err != nil {
		return nil, err
	}
	key := cfg.SessionKey
	if key == "" {
		key = SessionKey
	}
	auth := NewAuth(AuthConfig{
		BaseURL: cfg.URL,
		AnonKey: cfg.AnonKey,
		Timeout: cfg.AuthTimeout,
	}, kvstore.NewSessionSlot(slot, key, logger), repo, logger, m)

	return &Client{repo: repo, auth: auth, slot: slot}, nil
}

// From starts a query chain against table.
func (c *Client) From(table string) backend.Table {
	return backend.NewTable(c.repo, table)
}

// Auth exposes the GoTrue client.
func (c *Client) Auth() backend.Auth {
	return c.auth
}

// Repository exposes the Postgres executor for migrations.
func (c *Client) Repository() *Repository {
	return c.repo
}

// Ping checks the database and the session slot.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.repo.Ping(ctx); err != nil {
		return err
	}
	return c.slot.Ping(ctx)
}

// Close releases the pool and the session slot.
func (c *Client) Close() {
	c.repo.Close()
	_ = c.slot.Close()
}
