package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Effham/wellvois/internal/domain/repository"
)

type identityRepo struct {
	pool *pgxpool.Pool
}

// Los registros practitioner/patient son tablas de perfil aparte; acá solo
// importa si existen, así que se resuelven con LEFT JOIN en la misma lectura.
const identitySelect = `
	SELECT i.id, i.email, i.password_hash, i.provider_subject_id,
	       i.second_factor_enabled, i.totp_secret, i.totp_last_counter,
	       pr.id, pa.id,
	       i.created_at, i.disabled_at
	FROM identities i
	LEFT JOIN practitioners pr ON pr.identity_id = i.id
	LEFT JOIN patients pa ON pa.identity_id = i.id
`

func scanIdentity(row pgx.Row) (*repository.Identity, error) {
	var id repository.Identity
	err := row.Scan(
		&id.ID, &id.Email, &id.PasswordHash, &id.ProviderSubjectID,
		&id.SecondFactorEnabled, &id.TOTPSecret, &id.TOTPLastCounter,
		&id.PractitionerID, &id.PatientID,
		&id.CreatedAt, &id.DisabledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*repository.Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx, identitySelect+` WHERE i.id = $1`, id))
}

func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*repository.Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx, identitySelect+` WHERE lower(i.email) = lower($1)`, email))
}

func (r *identityRepo) GetByProviderSubject(ctx context.Context, subject string) (*repository.Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx, identitySelect+` WHERE i.provider_subject_id = $1`, subject))
}

func (r *identityRepo) SetProviderSubject(ctx context.Context, identityID, subject string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET provider_subject_id = $2 WHERE id = $1`,
		identityID, subject,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *identityRepo) SetTOTPLastCounter(ctx context.Context, identityID string, counter int64) error {
	// greatest(): nunca retrocede, aunque dos verificaciones corran a la vez.
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET totp_last_counter = greatest(coalesce(totp_last_counter, 0), $2) WHERE id = $1`,
		identityID, counter,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
