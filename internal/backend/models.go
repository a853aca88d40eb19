package backend

// Table identifiers understood by both backends.
const (
	TableAppUsers       = "app_users"
	TableLedger         = "ledger_transactions"
	TableAuditEvents    = "audit_events"
	TableLotteryResults = "lottery_results"
	TableNumberLimits   = "number_limits"
	TableBets           = "bets"
)

// Roles.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleVendedor   = "Vendedor"
	RoleCliente    = "Cliente"
)

// User statuses.
const (
	StatusActive    = "Active"
	StatusSuspended = "Suspended"
)

// Ledger transaction types.
const (
	TxCredit = "CREDIT"
	TxDebit  = "DEBIT"
)

// Audit severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
	SeverityForensic = "FORENSIC"
)

// Draw and bet statuses.
const (
	DrawOpen   = "OPEN"
	DrawClosed = "CLOSED"
	BetPending = "PENDING"
)

// AppUser represents the app_users table row. Balance is in céntimos.
type AppUser struct {
	ID        string  `json:"id"`
	AuthUID   string  `json:"auth_uid"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Cedula    string  `json:"cedula"`
	Phone     string  `json:"phone"`
	Role      string  `json:"role"`
	Balance   int64   `json:"balance"`
	Currency  string  `json:"currency"`
	Status    string  `json:"status"`
	IssuerID  *string `json:"issuer_id"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// LedgerTransaction is an immutable balance movement.
type LedgerTransaction struct {
	ID            string         `json:"id"`
	TicketCode    string         `json:"ticket_code"`
	UserID        string         `json:"user_id"`
	Amount        int64          `json:"amount"`
	BalanceBefore int64          `json:"balance_before"`
	BalanceAfter  int64          `json:"balance_after"`
	Type          string         `json:"type"`
	ReferenceID   string         `json:"reference_id"`
	CreatedAt     string         `json:"created_at"`
	Meta          map[string]any `json:"meta"`
}

// AuditEvent is an append-only, hash-stamped record.
type AuditEvent struct {
	ID                string         `json:"id"`
	EventID           string         `json:"event_id"`
	Timestamp         string         `json:"timestamp"`
	ActorID           string         `json:"actor_id"`
	ActorRole         string         `json:"actor_role"`
	ActorName         string         `json:"actor_name"`
	IPAddress         string         `json:"ip_address"`
	DeviceFingerprint string         `json:"device_fingerprint"`
	Type              string         `json:"type"`
	Action            string         `json:"action"`
	Severity          string         `json:"severity"`
	TargetResource    string         `json:"target_resource"`
	Metadata          map[string]any `json:"metadata"`
	Hash              string         `json:"hash"`
}

// LotteryResult is one draw.
type LotteryResult struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	DrawTime      string  `json:"drawTime"`
	WinningNumber *string `json:"winningNumber"`
	IsReventado   bool    `json:"isReventado"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
}

// NumberLimit caps exposure on a number for a draw type.
type NumberLimit struct {
	ID        string `json:"id"`
	DrawType  string `json:"draw_type"`
	Number    string `json:"number"`
	MaxAmount int64  `json:"max_amount"`
	CreatedAt string `json:"created_at"`
}

// Bet is a wager placed by a user.
type Bet struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Number    string `json:"number"`
	DrawID    string `json:"draw_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}
