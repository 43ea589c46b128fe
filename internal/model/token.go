package model

import "time"

// BlacklistedToken records a session token that was explicitly revoked.
// Entries are keyed by the SHA-256 of the exact string the client presented;
// the raw string is kept alongside for auditing. ExpiresAt mirrors the
// token's own expiry so the entry can be pruned once it no longer matters.
type BlacklistedToken struct {
	TokenHash string    `json:"-" db:"token_hash"`
	Token     string    `json:"-" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
