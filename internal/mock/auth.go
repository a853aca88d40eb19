package mock

import (
	"context"
	"log/slog"
	"strings"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/kvstore"
	"tiempos-digital/internal/metrics"
)

// SessionManager is the emulator's authentication surface. It reads and
// writes only its own durable slot, never the store's collections.
type SessionManager struct {
	store   *Store
	slot    *kvstore.SessionSlot
	gate    Gate
	ids     IDGenerator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ backend.Auth = (*SessionManager)(nil)

// NewSessionManager wires a session manager over slot.
func NewSessionManager(store *Store, slot *kvstore.SessionSlot, gate Gate, ids IDGenerator, logger *slog.Logger, m *metrics.Metrics) *SessionManager {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &SessionManager{
		store:   store,
		slot:    slot,
		gate:    gate,
		ids:     ids,
		logger:  logger.With("component", "emulator_auth"),
		metrics: m,
	}
}

// SignInWithPassword resolves the test vendor or test player by email, fails
// on the sentinel password, and otherwise signs in as the administrator.
func (m *SessionManager) SignInWithPassword(ctx context.Context, creds backend.Credentials) (*backend.Session, error) {
	if err := m.gate.Wait(ctx, OpAuth); err != nil {
		return nil, err
	}

	var (
		row backend.Row
		ok  bool
	)
	email := strings.TrimSpace(creds.Email)
	switch {
	case strings.EqualFold(email, TestVendorEmail):
		row, ok = m.store.Fixture(FixtureVendor)
	case strings.EqualFold(email, TestPlayerEmail):
		row, ok = m.store.Fixture(FixturePlayer)
	case creds.Password == FailingPassword:
		m.recordAuth("rejected")
		return nil, backend.Errorf(backend.ErrAuthFailure, "credentials rejected for %s", email)
	default:
		row, ok = m.store.Admin(), true
	}
	if !ok {
		m.recordAuth("rejected")
		return nil, backend.Errorf(backend.ErrAuthFailure, "identity for %s is no longer available", email)
	}

	session := &backend.Session{
		AccessToken: "mock-token-" + m.ids.NewID(),
		User:        userFromRow(row),
	}
	if err := m.slot.Save(ctx, session); err != nil {
		return nil, err
	}
	m.recordAuth("success")
	m.logger.Info("signed in", "user_id", session.User.ID, "role", session.User.Role)
	return session, nil
}

// GetSession returns the persisted session, or nil when none is active.
func (m *SessionManager) GetSession(ctx context.Context) (*backend.Session, error) {
	return m.slot.Load(ctx)
}

// GetUser returns the user of the active session, or nil.
func (m *SessionManager) GetUser(ctx context.Context) (*backend.User, error) {
	session, err := m.GetSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	return &session.User, nil
}

// SignOut clears the slot unconditionally.
func (m *SessionManager) SignOut(ctx context.Context) error {
	return m.slot.Clear(ctx)
}

// OnAuthStateChange accepts the handler but never calls it: the emulator does
// not push auth events.
func (m *SessionManager) OnAuthStateChange(backend.AuthChangeHandler) backend.Unsubscribe {
	return func() {}
}

func (m *SessionManager) recordAuth(outcome string) {
	if m.metrics != nil {
		m.metrics.AuthAttempts.WithLabelValues(backendLabel, outcome).Inc()
	}
}

func userFromRow(row backend.Row) backend.User {
	return backend.User{
		ID:        row.String("auth_uid"),
		Email:     row.String("email"),
		Role:      row.String("role"),
		Name:      row.String("name"),
		AppUserID: row.String("id"),
	}
}
