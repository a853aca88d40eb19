package backend

import "context"

// Client is the call surface shared by the emulator and the real backend, so
// application code never branches on which one is active.
type Client interface {
	From(table string) Table
	Auth() Auth
	Ping(ctx context.Context) error
	Close()
}

// User is the authenticated identity carried by a session.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	AppUserID string `json:"app_user_id,omitempty"`
}

// Session is the record persisted in the durable session slot.
type Session struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Credentials is the payload of signInWithPassword.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthEvent names a session transition delivered to auth listeners.
type AuthEvent string

const (
	AuthSignedIn  AuthEvent = "SIGNED_IN"
	AuthSignedOut AuthEvent = "SIGNED_OUT"
)

// AuthChangeHandler receives session transitions. session is nil on sign out.
type AuthChangeHandler func(event AuthEvent, session *Session)

// Unsubscribe detaches a handler registered with OnAuthStateChange.
type Unsubscribe func()

// Auth is the authentication surface. GetSession and GetUser return a nil
// result without error when no session is active.
type Auth interface {
	SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error)
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(handler AuthChangeHandler) Unsubscribe
}
