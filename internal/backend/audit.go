package backend

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// AuditHash stamps the event content, every field except the hash itself.
func AuditHash(row Row) string {
	content := make(map[string]any, len(row))
	for k, v := range row {
		if k != "hash" {
			content[k] = v
		}
	}
	data, _ := json.Marshal(content)
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IdentityCollision builds the audit event recorded when attempted reuses
// the cedula of existing. Reuse across roles is CRITICAL.
func IdentityCollision(existing, attempted Row) Row {
	cedula := attempted.String("cedula")
	severity := SeverityWarning
	if existing.String("role") != attempted.String("role") {
		severity = SeverityCritical
	}
	return Row{
		"actor_id":        attempted.String("issuer_id"),
		"actor_role":      "",
		"actor_name":      "",
		"type":            "IDENTITY",
		"action":          "IDENTITY_COLLISION",
		"severity":        severity,
		"target_resource": cedula,
		"metadata": map[string]any{
			"cedula":         cedula,
			"existing_id":    existing.String("id"),
			"existing_role":  existing.String("role"),
			"attempted_role": attempted.String("role"),
		},
	}
}
