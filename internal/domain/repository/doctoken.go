package repository

import (
	"context"
	"time"
)

// DocumentAccessToken habilita un deep link a documentos específicos.
// El token es single-use: Validate en el login lo marca consumido y su
// filtro de documentos viaja dentro del payload SSO.
type DocumentAccessToken struct {
	Token       string
	TenantID    string
	DocumentIDs []string
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// DocumentAccessTokenRepository define el acceso a tokens de documentos.
type DocumentAccessTokenRepository interface {
	// Validate retorna el token si existe, no expiró y no fue usado.
	// Cualquier otro caso: ErrNotFound / ErrTokenExpired / ErrTokenUsed.
	Validate(ctx context.Context, token string) (*DocumentAccessToken, error)

	// MarkUsed marca el token como consumido (idempotente).
	MarkUsed(ctx context.Context, token string) error
}
