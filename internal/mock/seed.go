package mock

import (
	"fmt"
	"math/rand/v2"
	"time"

	"tiempos-digital/internal/backend"
)

// Hand-authored identities recognised by the session manager.
const (
	TestVendorEmail = "vendedor@tiempos.test"
	TestPlayerEmail = "cliente@tiempos.test"
	AdminEmail      = "admin@tiempos.test"
	// FailingPassword always produces an authentication failure.
	FailingPassword = "wrong-password"

	AdminID      = "usr-superadmin"
	AdminAuthUID = "auth-superadmin"
	VendorID     = "usr-vendor-test"
	VendorAuth   = "auth-vendor-test"
	PlayerID     = "usr-player-test"
	PlayerAuth   = "auth-player-test"

	currencyCRC = "CRC"
)

// SeedConfig sizes the synthetic batches. A zero size picks the default and
// a negative size seeds no synthetic rows; Batch converts a plain count.
type SeedConfig struct {
	Clientes   int
	Vendedores int
	Ledger     int
	// Seed drives the pseudo-random generator; zero derives one from the clock.
	Seed uint64
	// Window bounds how far back synthetic creation times go.
	Window time.Duration
}

// Batch maps an explicit row count onto a SeedConfig size, so that zero
// means an empty batch rather than the default.
func Batch(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func batchSize(n, def int) int {
	switch {
	case n == 0:
		return def
	case n < 0:
		return 0
	default:
		return n
	}
}

func (c SeedConfig) withDefaults(now time.Time) SeedConfig {
	c.Clientes = batchSize(c.Clientes, 24)
	c.Vendedores = batchSize(c.Vendedores, 6)
	c.Ledger = batchSize(c.Ledger, 40)
	if c.Seed == 0 {
		c.Seed = uint64(now.UnixNano())
	}
	if c.Window <= 0 {
		c.Window = 90 * 24 * time.Hour
	}
	return c
}

var (
	firstNames = []string{"Ana", "Luis", "María", "José", "Carmen", "Andrés", "Sofía", "Diego", "Valeria", "Jorge", "Daniela", "Esteban"}
	lastNames  = []string{"Rodríguez", "Vargas", "Jiménez", "Mora", "Rojas", "Alvarado", "Solano", "Chaves", "Castro", "Araya"}
	drawTimes  = []struct{ name, at string }{
		{"Mediodia", "12:55"},
		{"Tarde", "16:30"},
		{"Noche", "19:30"},
	}
)

type seeder struct {
	store *Store
	rng   *rand.Rand
	now   time.Time
	cfg   SeedConfig
	seq   int
}

func seedStore(s *Store, cfg SeedConfig, now time.Time) {
	now = now.UTC()
	cfg = cfg.withDefaults(now)
	sd := &seeder{
		store: s,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		now:   now,
		cfg:   cfg,
	}

	nowStamp := backend.FormatTimestamp(now)
	s.admin = backend.Row{
		"id": AdminID, "auth_uid": AdminAuthUID, "email": AdminEmail,
		"name": "Administración Central", "cedula": "1-0000-0001", "phone": "2222-0000",
		"role": backend.RoleSuperAdmin, "balance": int64(0), "currency": currencyCRC,
		"status": backend.StatusActive, "issuer_id": nil,
		"created_at": nowStamp, "updated_at": nowStamp,
	}

	vendor := backend.Row{
		"id": VendorID, "auth_uid": VendorAuth, "email": TestVendorEmail,
		"name": "Vendedor de Prueba", "cedula": "1-1111-1111", "phone": "8888-1111",
		"role": backend.RoleVendedor, "balance": int64(50_000_000), "currency": currencyCRC,
		"status": backend.StatusActive, "issuer_id": AdminID,
		"created_at": nowStamp, "updated_at": nowStamp,
	}
	player := backend.Row{
		"id": PlayerID, "auth_uid": PlayerAuth, "email": TestPlayerEmail,
		"name": "Cliente de Prueba", "cedula": "2-2222-2222", "phone": "8888-2222",
		"role": backend.RoleCliente, "balance": int64(2_500_000), "currency": currencyCRC,
		"status": backend.StatusActive, "issuer_id": VendorID,
		"created_at": nowStamp, "updated_at": nowStamp,
	}
	s.fixtures[FixtureVendor] = vendor
	s.fixtures[FixturePlayer] = player

	// Test identities come first by construction; synthetic rows follow,
	// each strictly older than the one before.
	s.appendSeed(colVendedores, vendor)
	for i := 0; i < cfg.Vendedores; i++ {
		s.appendSeed(colVendedores, sd.user(backend.RoleVendedor, AdminID, i, cfg.Vendedores))
	}
	s.appendSeed(colClientes, player)
	for i := 0; i < cfg.Clientes; i++ {
		s.appendSeed(colClientes, sd.user(backend.RoleCliente, sd.issuerFor(), i, cfg.Clientes))
	}

	sd.ledger()
	sd.results()
	sd.limits()
	sd.bets()
	sd.audit()

	s.stamp.last = now
}

func (sd *seeder) createdAt(i, n int) string {
	step := sd.cfg.Window / time.Duration(n+1)
	jitter := time.Duration(sd.rng.Int64N(int64(step/2) + 1))
	return backend.FormatTimestamp(sd.now.Add(-step*time.Duration(i+1) + jitter))
}

func (sd *seeder) issuerFor() string {
	vendors := sd.store.rows(colVendedores)
	return vendors[sd.rng.IntN(len(vendors))].String("id")
}

func (sd *seeder) user(role, issuer string, i, n int) backend.Row {
	sd.seq++
	status := backend.StatusActive
	if sd.rng.IntN(100) >= 80 {
		status = backend.StatusSuspended
	}
	first := firstNames[sd.rng.IntN(len(firstNames))]
	last := lastNames[sd.rng.IntN(len(lastNames))]
	created := sd.createdAt(i, n)
	return backend.Row{
		"id":         sd.store.ids.NewID(),
		"auth_uid":   sd.store.ids.NewID(),
		"email":      fmt.Sprintf("%s.%s%d@tiempos.test", asciiLower(first), asciiLower(last), sd.seq),
		"name":       first + " " + last,
		"cedula":     fmt.Sprintf("%d-%04d-%04d", 3+sd.seq%5, 1000+sd.seq, sd.rng.IntN(10000)),
		"phone":      fmt.Sprintf("8%03d-%04d", sd.rng.IntN(1000), sd.rng.IntN(10000)),
		"role":       role,
		"balance":    sd.rng.Int64N(10_000_000),
		"currency":   currencyCRC,
		"status":     status,
		"issuer_id":  issuer,
		"created_at": created,
		"updated_at": created,
	}
}

func (sd *seeder) ledger() {
	users := append(append([]backend.Row{}, sd.store.rows(colClientes)...), sd.store.rows(colVendedores)...)
	for i := 0; i < sd.cfg.Ledger; i++ {
		user := users[sd.rng.IntN(len(users))]
		amount := (sd.rng.Int64N(500) + 1) * 1_000
		txType := backend.TxCredit
		if sd.rng.IntN(2) == 0 {
			txType = backend.TxDebit
			amount = -amount
		}
		before := sd.rng.Int64N(5_000_000) + 500_000
		sd.store.appendSeed(colLedger, backend.Row{
			"id":             sd.store.ids.NewID(),
			"ticket_code":    shortCode(sd.store.ids, "TX"),
			"user_id":        user.String("id"),
			"amount":         amount,
			"balance_before": before,
			"balance_after":  before + amount,
			"type":           txType,
			"reference_id":   shortCode(sd.store.ids, "REF"),
			"created_at":     sd.createdAt(i, sd.cfg.Ledger),
			"meta":           map[string]any{"source": "seed"},
		})
	}
}

func (sd *seeder) results() {
	const days = 3
	n := days * len(drawTimes)
	k := 0
	for d := 0; d < days; d++ {
		date := sd.now.AddDate(0, 0, -d).Format("2006-01-02")
		for j := len(drawTimes) - 1; j >= 0; j-- {
			row := backend.Row{
				"id":            sd.store.ids.NewID(),
				"date":          date,
				"drawTime":      drawTimes[j].name,
				"winningNumber": nil,
				"isReventado":   false,
				"status":        backend.DrawOpen,
				"created_at":    sd.createdAt(k, n),
			}
			if d > 0 {
				row["winningNumber"] = fmt.Sprintf("%02d", sd.rng.IntN(100))
				row["isReventado"] = sd.rng.IntN(10) == 0
				row["status"] = backend.DrawClosed
			}
			sd.store.appendSeed(colResults, row)
			k++
		}
	}
}

func (sd *seeder) limits() {
	seeds := []struct {
		draw, number string
		max          int64
	}{
		{"Mediodia", "07", 200_000_00},
		{"Tarde", "13", 150_000_00},
		{"Noche", "00", 100_000_00},
		{"Noche", "99", 100_000_00},
	}
	for i, l := range seeds {
		sd.store.appendSeed(colLimits, backend.Row{
			"id":         sd.store.ids.NewID(),
			"draw_type":  l.draw,
			"number":     l.number,
			"max_amount": l.max,
			"created_at": sd.createdAt(i, len(seeds)),
		})
	}
}

func (sd *seeder) bets() {
	const n = 12
	clientes := sd.store.rows(colClientes)
	results := sd.store.rows(colResults)
	statuses := []string{backend.BetPending, "WON", "LOST"}
	for i := 0; i < n; i++ {
		sd.store.appendSeed(colBets, backend.Row{
			"id":         sd.store.ids.NewID(),
			"user_id":    clientes[sd.rng.IntN(len(clientes))].String("id"),
			"draw_id":    results[sd.rng.IntN(len(results))].String("id"),
			"number":     fmt.Sprintf("%02d", sd.rng.IntN(100)),
			"amount":     (sd.rng.Int64N(50) + 1) * 100_00,
			"status":     statuses[sd.rng.IntN(len(statuses))],
			"created_at": sd.createdAt(i, n),
		})
	}
}

func (sd *seeder) audit() {
	events := []backend.Row{
		{
			"actor_id": AdminID, "actor_role": backend.RoleSuperAdmin, "actor_name": "Administración Central",
			"type": "AUTH", "action": "LOGIN_SUCCESS", "severity": backend.SeverityInfo,
			"target_resource": "session", "metadata": map[string]any{},
		},
		{
			"actor_id": VendorID, "actor_role": backend.RoleVendedor, "actor_name": "Vendedor de Prueba",
			"type": "FINANCIAL", "action": "BALANCE_RECHARGE", "severity": backend.SeverityWarning,
			"target_resource": PlayerID, "metadata": map[string]any{"amount": int64(1_000_000)},
		},
		{
			"actor_id": AdminID, "actor_role": backend.RoleSuperAdmin, "actor_name": "Administración Central",
			"type": "IDENTITY", "action": "IDENTITY_COLLISION", "severity": backend.SeverityCritical,
			"target_resource": "2-2222-2222",
			"metadata":        map[string]any{"cedula": "2-2222-2222", "existing_role": backend.RoleCliente, "attempted_role": backend.RoleVendedor},
		},
		{
			"actor_id": AdminID, "actor_role": backend.RoleSuperAdmin, "actor_name": "Administración Central",
			"type": "DRAW", "action": "RESULT_PUBLISHED", "severity": backend.SeverityForensic,
			"target_resource": "lottery_results", "metadata": map[string]any{},
		},
	}
	for i, ev := range events {
		ev["id"] = sd.store.ids.NewID()
		ev["event_id"] = shortCode(sd.store.ids, "EVT")
		ev["timestamp"] = sd.createdAt(i, len(events))
		ev["ip_address"] = "10.0.0." + fmt.Sprint(10+i)
		ev["device_fingerprint"] = shortCode(sd.store.ids, "DEV")
		ev["hash"] = backend.AuditHash(ev)
		sd.store.appendSeed(colAudit, ev)
	}
}

func asciiLower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case 'á':
			r = 'a'
		case 'é':
			r = 'e'
		case 'í':
			r = 'i'
		case 'ó':
			r = 'o'
		case 'ú':
			r = 'u'
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
