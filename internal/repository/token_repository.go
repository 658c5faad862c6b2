package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/univlabs/qr-attendance-api/internal/models"
)

// TokenRepository records consumed magic-link tokens by hash. Rows are never
// deleted, so a token stays burned even after its signature expires.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Exists reports whether the token hash has already been consumed.
func (r *TokenRepository) Exists(ctx context.Context, tokenHash string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM used_tokens WHERE token_hash = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tokenHash); err != nil {
		return false, fmt.Errorf("check used token: %w", err)
	}
	return exists, nil
}

// Create marks the token hash as consumed. Returns created=false when a
// concurrent request burned the same token first.
func (r *TokenRepository) Create(ctx context.Context, tokenHash string) (bool, error) {
	token := models.UsedToken{
		ID:        uuid.NewString(),
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
	}
	const query = `INSERT INTO used_tokens (id, token_hash, created_at) VALUES (:id, :token_hash, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("record used token: %w", err)
	}
	return true, nil
}
