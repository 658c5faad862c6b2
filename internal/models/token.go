package models

import "time"

// UsedToken records a consumed magic-link token by its sha256 hash.
// Rows are append-only: a token is single-use forever, not just until expiry.
type UsedToken struct {
	ID        string    `db:"id" json:"id"`
	TokenHash string    `db:"token_hash" json:"token_hash"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
