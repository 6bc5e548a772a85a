package model

import "time"

// AccessToken is a single-use, short-lived credential for viewing access
// instructions.  Only the keyed hash of the raw token is stored.
type AccessToken struct {
	TokenHash        string     // access_tokens.token_hash
	PurchaseRecordID string     // access_tokens.purchase_record_id
	ExpiresAt        time.Time  // access_tokens.expires_at
	Used             bool       // access_tokens.used
	UsedAt           *time.Time // access_tokens.used_at (nullable)
	CreatedAt        time.Time  // access_tokens.created_at
}
