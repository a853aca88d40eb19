package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/kvstore"
)

func TestSignInResolvesIdentityByEmail(t *testing.T) {
	c := newTestClient(t, Options{})
	ctx := context.Background()

	cases := []struct {
		email, password string
		wantID, role    string
	}{
		{TestVendorEmail, "anything", VendorID, backend.RoleVendedor},
		{"CLIENTE@tiempos.test", FailingPassword, PlayerID, backend.RoleCliente},
		{"someone@else.test", "secret", AdminID, backend.RoleSuperAdmin},
	}
	for _, tc := range cases {
		session, err := c.Auth().SignInWithPassword(ctx, backend.Credentials{Email: tc.email, Password: tc.password})
		require.NoError(t, err, tc.email)
		assert.Equal(t, tc.wantID, session.User.AppUserID, tc.email)
		assert.Equal(t, tc.role, session.User.Role, tc.email)
		assert.Contains(t, session.AccessToken, "mock-token-")
	}
}

func TestSignInWithFailingPassword(t *testing.T) {
	c := newTestClient(t, Options{})
	ctx := context.Background()

	_, err := c.Auth().SignInWithPassword(ctx, backend.Credentials{Email: "admin@tiempos.test", Password: FailingPassword})
	require.ErrorIs(t, err, backend.ErrAuthFailure)

	session, err := c.Auth().GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionRoundTrip(t *testing.T) {
	c := newTestClient(t, Options{})
	ctx := context.Background()

	signed, err := c.Auth().SignInWithPassword(ctx, backend.Credentials{Email: TestPlayerEmail, Password: "x"})
	require.NoError(t, err)

	got, err := c.Auth().GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, signed, got)

	user, err := c.Auth().GetUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, PlayerAuth, user.ID)
	assert.Equal(t, TestPlayerEmail, user.Email)

	require.NoError(t, c.Auth().SignOut(ctx))
	got, err = c.Auth().GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	user, err = c.Auth().GetUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, c.Auth().SignOut(ctx))
}

func TestSessionSurvivesRestart(t *testing.T) {
	slot := kvstore.NewMemory()
	ctx := context.Background()

	first := newTestClient(t, Options{Slot: slot})
	signed, err := first.Auth().SignInWithPassword(ctx, backend.Credentials{Email: TestVendorEmail})
	require.NoError(t, err)

	second := newTestClient(t, Options{Slot: slot})
	restored, err := second.Auth().GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, signed, restored)
}

func TestUnreadableSessionCountsAsSignedOut(t *testing.T) {
	slot := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, slot.Set(ctx, SessionKey, []byte("{not json")))

	c := newTestClient(t, Options{Slot: slot})
	session, err := c.Auth().GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, ok, err := slot.Get(ctx, SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeletedFixtureCannotSignIn(t *testing.T) {
	c := newTestClient(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.From(backend.TableAppUsers).Delete().Eq("id", PlayerID).Exec(ctx))
	_, err := c.Auth().SignInWithPassword(ctx, backend.Credentials{Email: TestPlayerEmail})
	assert.ErrorIs(t, err, backend.ErrAuthFailure)
}

func TestSignInSeesFixtureUpdates(t *testing.T) {
	c := newTestClient(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.From(backend.TableAppUsers).Update(backend.Row{"name": "Vendedor Renombrado"}).Eq("id", VendorID).Exec(ctx))
	session, err := c.Auth().SignInWithPassword(ctx, backend.Credentials{Email: TestVendorEmail})
	require.NoError(t, err)
	assert.Equal(t, "Vendedor Renombrado", session.User.Name)
}

func TestAuthStateListenerIsInert(t *testing.T) {
	c := newTestClient(t, Options{})
	called := false
	unsubscribe := c.Auth().OnAuthStateChange(func(backend.AuthEvent, *backend.Session) { called = true })
	_, err := c.Auth().SignInWithPassword(context.Background(), backend.Credentials{Email: TestVendorEmail})
	require.NoError(t, err)
	unsubscribe()
	assert.False(t, called)
}
