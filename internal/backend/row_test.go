package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestampSortsLexically(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	earlier := FormatTimestamp(base)
	later := FormatTimestamp(base.Add(time.Microsecond))

	assert.Equal(t, "2026-03-01T09:00:00.000000Z", earlier)
	assert.Less(t, earlier, later)

	local := time.Date(2026, 3, 1, 3, 0, 0, 0, time.FixedZone("CST", -6*3600))
	assert.Equal(t, earlier, FormatTimestamp(local))
}

func TestCloneIsDeep(t *testing.T) {
	orig := Row{"meta": map[string]any{"tags": []any{"a"}}, "n": int64(1)}
	cp := orig.Clone()
	cp["meta"].(map[string]any)["tags"].([]any)[0] = "b"
	cp["n"] = int64(2)

	assert.Equal(t, "a", orig["meta"].(map[string]any)["tags"].([]any)[0])
	assert.Equal(t, int64(1), orig["n"])
	assert.Nil(t, Row(nil).Clone())
}

func TestNormalizeNumbers(t *testing.T) {
	row := Row{"a": json.Number("12"), "b": json.Number("1.5"), "c": map[string]any{"d": json.Number("3")}}

	out := NormalizeNumbers(row)
	assert.Equal(t, int64(12), out["a"])
	assert.Equal(t, 1.5, out["b"])
	assert.Equal(t, int64(3), out["c"].(map[string]any)["d"])
}

func TestDecodeIntoTypedEntity(t *testing.T) {
	row := Row{
		"id":            "r1",
		"date":          "2026-03-01",
		"drawTime":      "Noche",
		"winningNumber": "42",
		"isReventado":   true,
		"status":        DrawClosed,
		"created_at":    "2026-03-01T19:30:00.000000Z",
	}
	var res LotteryResult
	require.NoError(t, row.Decode(&res))
	assert.Equal(t, "Noche", res.DrawTime)
	require.NotNil(t, res.WinningNumber)
	assert.Equal(t, "42", *res.WinningNumber)
	assert.True(t, res.IsReventado)

	var user AppUser
	require.NoError(t, Row{"id": "u1", "balance": json.Number("2500000"), "issuer_id": nil}.Decode(&user))
	assert.Equal(t, int64(2_500_000), user.Balance)
	assert.Nil(t, user.IssuerID)
}

func TestRowAccessors(t *testing.T) {
	row := Row{"s": "x", "i": 3.0, "f": 3.5, "nil": nil}

	assert.Equal(t, "x", row.String("s"))
	assert.Equal(t, "", row.String("i"))
	n, ok := row.Int("i")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
	_, ok = row.Int("f")
	assert.False(t, ok)
	assert.True(t, row.Has("s"))
	assert.False(t, row.Has("nil"))
	assert.False(t, row.Has("absent"))
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, 0, CompareValues(nil, nil))
	assert.Equal(t, -1, CompareValues(nil, "a"))
	assert.Equal(t, 1, CompareValues(int64(10), 9.5))
	assert.Equal(t, -1, CompareValues(false, true))
	assert.Equal(t, -1, CompareValues("2026-01-01", "2026-01-02"))
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"":             nil,
		"not_found":    Errorf(ErrNotFound, "x"),
		"unsupported":  fmt.Errorf("wrap: %w", ErrUnsupported),
		"auth_failure": ErrAuthFailure,
		"conflict":     Errorf(ErrConflict, "dup"),
		"invalid":      Errorf(ErrInvalid, "bad"),
		"internal":     errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err), "error %v", err)
	}
	assert.EqualError(t, Errorf(ErrConflict, "cedula %s", "1-1"), "conflict: cedula 1-1")
}

func TestIdentityCollisionSeverity(t *testing.T) {
	existing := Row{"id": "u1", "role": RoleCliente, "cedula": "1-2"}

	cross := IdentityCollision(existing, Row{"role": RoleVendedor, "cedula": "1-2", "issuer_id": "adm"})
	assert.Equal(t, SeverityCritical, cross["severity"])
	assert.Equal(t, "1-2", cross["target_resource"])
	assert.Equal(t, "adm", cross["actor_id"])

	same := IdentityCollision(existing, Row{"role": RoleCliente, "cedula": "1-2"})
	assert.Equal(t, SeverityWarning, same["severity"])
}

func TestAuditHashIgnoresHashField(t *testing.T) {
	ev := Row{"action": "LOGIN_SUCCESS", "timestamp": "2026-01-01T00:00:00.000000Z"}
	h := AuditHash(ev)
	assert.Len(t, h, 64)

	ev["hash"] = h
	assert.Equal(t, h, AuditHash(ev))

	ev["action"] = "LOGIN_FAILED"
	assert.NotEqual(t, h, AuditHash(ev))
}
