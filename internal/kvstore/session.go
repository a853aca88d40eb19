package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"tiempos-digital/internal/backend"
)

// SessionSlot stores one serialized {access_token, user} record under a
// fixed key.
type SessionSlot struct {
	store  Store
	key    string
	logger *slog.Logger
}

// NewSessionSlot binds key in store.
func NewSessionSlot(store Store, key string, logger *slog.Logger) *SessionSlot {
	return &SessionSlot{store: store, key: key, logger: logger.With("component", "session_slot")}
}

// Load returns the stored session, or nil when the slot is empty. An
// unreadable record counts as no session and is cleared.
func (s *SessionSlot) Load(ctx context.Context) (*backend.Session, error) {
	data, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var session backend.Session
	if err := json.Unmarshal(data, &session); err != nil || session.AccessToken == "" {
		s.logger.Warn("discarding unreadable session record", "key", s.key)
		_ = s.store.Delete(ctx, s.key)
		return nil, nil
	}
	return &session, nil
}

// Save overwrites the slot with session.
func (s *SessionSlot) Save(ctx context.Context, session *backend.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.store.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Clear empties the slot. Clearing an empty slot is not an error.
func (s *SessionSlot) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
