package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Effham/wellvois/internal/domain/repository"
)

type docTokenRepo struct {
	pool *pgxpool.Pool
}

func (r *docTokenRepo) Validate(ctx context.Context, token string) (*repository.DocumentAccessToken, error) {
	var t repository.DocumentAccessToken
	err := r.pool.QueryRow(ctx, `
		SELECT token, tenant_id, document_ids, expires_at, used_at
		FROM document_access_tokens
		WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.TenantID, &t.DocumentIDs, &t.ExpiresAt, &t.UsedAt)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.UsedAt != nil {
		return nil, repository.ErrTokenUsed
	}
	if time.Now().After(t.ExpiresAt) {
		return nil, repository.ErrTokenExpired
	}
	return &t, nil
}

func (r *docTokenRepo) MarkUsed(ctx context.Context, token string) error {
	// Idempotente: marcar un token ya usado no es error.
	_, err := r.pool.Exec(ctx, `
		UPDATE document_access_tokens
		SET used_at = coalesce(used_at, now())
		WHERE token = $1`,
		token,
	)
	return err
}
