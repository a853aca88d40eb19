package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/mock"
)

type response struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error"`
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	client := mock.New(mock.Options{
		IDs:   &mock.SequenceGenerator{Prefix: "h"},
		Clock: mock.FixedClock{At: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)},
		Seed:  mock.SeedConfig{Seed: 7},
	})
	t.Cleanup(client.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(":0", client, logger, nil, opts).Handler()
}

func call(t *testing.T, h http.Handler, method, target, body string) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func decodeData(t *testing.T, raw json.RawMessage, dest any) {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	require.NoError(t, dec.Decode(dest))
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Options{})
	code, _ := call(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestSignInAndSession(t *testing.T) {
	h := newTestServer(t, Options{})

	code, res := call(t, h, http.MethodPost, "/auth/sign-in", `{"email":"vendedor@tiempos.test","password":"x"}`)
	require.Equal(t, http.StatusOK, code)
	var session backend.Session
	decodeData(t, res.Data, &session)
	assert.Equal(t, mock.VendorID, session.User.AppUserID)
	assert.Equal(t, backend.RoleVendedor, session.User.Role)

	code, res = call(t, h, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusOK, code)
	var restored backend.Session
	decodeData(t, res.Data, &restored)
	assert.Equal(t, session, restored)

	code, _ = call(t, h, http.MethodPost, "/auth/sign-out", "")
	require.Equal(t, http.StatusOK, code)
	code, res = call(t, h, http.MethodGet, "/auth/user", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, len(res.Data) == 0 || string(res.Data) == "null", string(res.Data))
}

func TestSignInFailures(t *testing.T) {
	h := newTestServer(t, Options{})

	code, res := call(t, h, http.MethodPost, "/auth/sign-in", `{"email":"admin@tiempos.test","password":"`+mock.FailingPassword+`"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "auth_failure", res.Error.Kind)

	code, res = call(t, h, http.MethodPost, "/auth/sign-in", `{`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "invalid", res.Error.Kind)
}

func TestSignInRateLimit(t *testing.T) {
	h := newTestServer(t, Options{SignInPerMinute: 1})

	code, _ := call(t, h, http.MethodPost, "/auth/sign-in", `{"email":"cliente@tiempos.test"}`)
	require.Equal(t, http.StatusOK, code)
	code, res := call(t, h, http.MethodPost, "/auth/sign-in", `{"email":"cliente@tiempos.test"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "rate_limited", res.Error.Kind)
}

func TestTableReads(t *testing.T) {
	h := newTestServer(t, Options{})

	code, res := call(t, h, http.MethodGet, "/tables/app_users/one?field=email&value=vendedor@tiempos.test", "")
	require.Equal(t, http.StatusOK, code)
	var user backend.Row
	decodeData(t, res.Data, &user)
	assert.Equal(t, mock.VendorID, user["id"])

	code, res = call(t, h, http.MethodGet, "/tables/audit_events?limit=2&order=timestamp&asc=true", "")
	require.Equal(t, http.StatusOK, code)
	var events []backend.Row
	decodeData(t, res.Data, &events)
	assert.Len(t, events, 2)

	code, res = call(t, h, http.MethodGet, "/tables/bets/one?field=id&value=missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "not_found", res.Error.Kind)

	code, res = call(t, h, http.MethodGet, "/tables/payouts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "unsupported", res.Error.Kind)

	code, _ = call(t, h, http.MethodGet, "/tables/bets?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, h, http.MethodGet, "/tables/bets?order=amount&asc=maybe", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTableWrites(t *testing.T) {
	h := newTestServer(t, Options{})

	code, res := call(t, h, http.MethodPost, "/tables/bets", `{"user_id":"`+mock.PlayerID+`","number":"07","amount":250}`)
	require.Equal(t, http.StatusCreated, code)
	var bet backend.Row
	decodeData(t, res.Data, &bet)
	id, _ := bet["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, backend.BetPending, bet["status"])

	code, res = call(t, h, http.MethodGet, "/tables/bets?field=amount&value=250", "")
	require.Equal(t, http.StatusOK, code)
	var matched []backend.Row
	decodeData(t, res.Data, &matched)
	require.NotEmpty(t, matched)
	assert.Equal(t, json.Number("250"), matched[0]["amount"])

	code, res = call(t, h, http.MethodPatch, "/tables/bets?field=id&value="+id, `{"status":"WON"}`)
	require.Equal(t, http.StatusOK, code)
	var updated backend.Row
	decodeData(t, res.Data, &updated)
	assert.Equal(t, "WON", updated["status"])

	code, _ = call(t, h, http.MethodPatch, "/tables/bets", `{"status":"LOST"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, h, http.MethodPost, "/tables/bets", `[]`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, h, http.MethodDelete, "/tables/bets?field=id&value="+id, "")
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, h, http.MethodGet, "/tables/bets/one?field=id&value="+id, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAppendOnlyTablesOverHTTP(t *testing.T) {
	h := newTestServer(t, Options{})

	code, res := call(t, h, http.MethodDelete, "/tables/ledger_transactions?field=id&value=x", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "unsupported", res.Error.Kind)
}

func TestBetConflictOverHTTP(t *testing.T) {
	h := newTestServer(t, Options{})

	body := `{"id":"bet-fixed","user_id":"` + mock.PlayerID + `","amount":100}`
	code, _ := call(t, h, http.MethodPost, "/tables/bets", body)
	require.Equal(t, http.StatusCreated, code)
	code, res := call(t, h, http.MethodPost, "/tables/bets", body)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "conflict", res.Error.Kind)
}

func TestBasePath(t *testing.T) {
	h := newTestServer(t, Options{BasePath: "api/"})

	code, _ := call(t, h, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call(t, h, http.MethodGet, "/apix/healthz", "")
	assert.Equal(t, http.StatusNotFound, code)
}
