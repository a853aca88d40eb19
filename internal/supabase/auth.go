package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/kvstore"
	"tiempos-digital/internal/metrics"
)

// AuthConfig holds GoTrue client configuration.
type AuthConfig struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
}

// Auth signs users in through the GoTrue REST API and keeps the resulting
// session in the durable slot.
type Auth struct {
	logger   *slog.Logger
	baseURL  string
	anonKey  string
	http     *http.Client
	slot     *kvstore.SessionSlot
	profiles backend.Executor
	metrics  *metrics.Metrics

	mu        sync.Mutex
	nextID    int
	listeners map[int]backend.AuthChangeHandler
}

var _ backend.Auth = (*Auth)(nil)

// NewAuth builds a GoTrue client. profiles, when set, resolves the app_users
// row behind the authenticated identity.
func NewAuth(cfg AuthConfig, slot *kvstore.SessionSlot, profiles backend.Executor, logger *slog.Logger, m *metrics.Metrics) *Auth {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Auth{
		logger:    logger.With("component", "gotrue"),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:   cfg.AnonKey,
		http:      &http.Client{Timeout: timeout},
		slot:      slot,
		profiles:  profiles,
		metrics:   m,
		listeners: make(map[int]backend.AuthChangeHandler),
	}
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	User        gotrueUser `json:"user"`
	Error       string     `json:"error"`
	Description string     `json:"error_description"`
	Message     string     `json:"msg"`
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u gotrueUser) toUser() backend.User {
	user := backend.User{ID: u.ID, Email: u.Email}
	if role, ok := u.AppMetadata["role"].(string); ok {
		user.Role = role
	} else if role, ok := u.UserMetadata["role"].(string); ok {
		user.Role = role
	}
	if name, ok := u.UserMetadata["name"].(string); ok {
		user.Name = name
	}
	return user
}

// SignInWithPassword exchanges credentials for an access token.
func (a *Auth) SignInWithPassword(ctx context.Context, creds backend.Credentials) (*backend.Session, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	var resp tokenResponse
	status, err := a.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", bytes.NewReader(payload), &resp)
	if err != nil {
		a.recordAuth("error")
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity {
		a.recordAuth("rejected")
		return nil, backend.Errorf(backend.ErrAuthFailure, "credentials rejected for %s: %s", creds.Email, resp.reason())
	}
	if status >= 300 || resp.AccessToken == "" {
		a.recordAuth("error")
		return nil, fmt.Errorf("gotrue sign in: status %d: %s", status, resp.reason())
	}

	session := &backend.Session{AccessToken: resp.AccessToken, User: resp.User.toUser()}
	a.enrich(ctx, &session.User)
	if err := a.slot.Save(ctx, session); err != nil {
		return nil, err
	}
	a.recordAuth("success")
	a.logger.Info("signed in", "user_id", session.User.ID, "role", session.User.Role)
	a.notify(backend.AuthSignedIn, session)
	return session, nil
}

// GetSession returns the persisted session, or nil when none is active.
func (a *Auth) GetSession(ctx context.Context) (*backend.Session, error) {
	return a.slot.Load(ctx)
}

// GetUser validates the stored token with GoTrue. A token the server no
// longer accepts clears the slot and reports no user.
func (a *Auth) GetUser(ctx context.Context) (*backend.User, error) {
	session, err := a.slot.Load(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	var u gotrueUser
	status, err := a.do(ctx, http.MethodGet, "/auth/v1/user", session.AccessToken, nil, &u)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		a.logger.Warn("stored session rejected by server", "user_id", session.User.ID)
		if err := a.slot.Clear(ctx); err != nil {
			return nil, err
		}
		a.notify(backend.AuthSignedOut, nil)
		return nil, nil
	}
	if status >= 300 {
		return nil, fmt.Errorf("gotrue get user: status %d", status)
	}
	user := u.toUser()
	user.AppUserID = session.User.AppUserID
	if user.Role == "" {
		user.Role = session.User.Role
	}
	if user.Name == "" {
		user.Name = session.User.Name
	}
	return &user, nil
}

// SignOut revokes the token server-side when possible and always clears the
// local slot.
func (a *Auth) SignOut(ctx context.Context) error {
	session, err := a.slot.Load(ctx)
	if err != nil {
		return err
	}
	if session != nil {
		status, err := a.do(ctx, http.MethodPost, "/auth/v1/logout", session.AccessToken, nil, nil)
		if err != nil || status >= 300 {
			a.logger.Warn("remote sign out failed", "status", status, "error", err)
		}
	}
	if err := a.slot.Clear(ctx); err != nil {
		return err
	}
	a.notify(backend.AuthSignedOut, nil)
	return nil
}

// OnAuthStateChange registers handler for sign-in and sign-out events.
func (a *Auth) OnAuthStateChange(handler backend.AuthChangeHandler) backend.Unsubscribe {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = handler
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) notify(event backend.AuthEvent, session *backend.Session) {
	a.mu.Lock()
	handlers := make([]backend.AuthChangeHandler, 0, len(a.listeners))
	for _, h := range a.listeners {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	for _, h := range handlers {
		h(event, session)
	}
}

// enrich fills the profile fields from app_users. Failures are logged only;
// the session stays valid without them.
func (a *Auth) enrich(ctx context.Context, user *backend.User) {
	if a.profiles == nil {
		return
	}
	row, err := a.profiles.FetchOne(ctx, backend.QuerySpec{
		Table:  backend.TableAppUsers,
		Filter: backend.Predicate{"auth_uid": user.ID},
	})
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			a.logger.Warn("profile lookup failed", "user_id", user.ID, "error", err)
		}
		return
	}
	user.AppUserID = row.String("id")
	if role := row.String("role"); role != "" {
		user.Role = role
	}
	if name := row.String("name"); name != "" {
		user.Name = name
	}
}

func (a *Auth) do(ctx context.Context, method, endpoint, token string, body io.Reader, dest any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tiempos-digital/gotrue-client")
	if a.anonKey != "" {
		req.Header.Set("apikey", a.anonKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := a.http.Do(req)
	if err != nil {
		a.observe(endpoint, "", start, err)
		return 0, fmt.Errorf("gotrue request: %w", err)
	}
	defer res.Body.Close()
	a.observe(endpoint, statusKind(res.StatusCode), start, nil)

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if dest != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, dest); err != nil && res.StatusCode < 300 {
			return res.StatusCode, fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return res.StatusCode, nil
}

func (a *Auth) observe(endpoint, kind string, started time.Time, err error) {
	if a.metrics == nil {
		return
	}
	if err != nil {
		kind = "internal"
	}
	op := endpoint
	if i := strings.IndexByte(op, '?'); i >= 0 {
		op = op[:i]
	}
	a.metrics.ObserveBackend(backendLabel, "auth", op, kind, time.Since(started))
}

func (a *Auth) recordAuth(outcome string) {
	if a.metrics != nil {
		a.metrics.AuthAttempts.WithLabelValues(backendLabel, outcome).Inc()
	}
}

func statusKind(code int) string {
	switch {
	case code < 300:
		return ""
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusBadRequest:
		return "auth_failure"
	default:
		return "internal"
	}
}

func (r tokenResponse) reason() string {
	for _, s := range []string{r.Description, r.Message, r.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}
