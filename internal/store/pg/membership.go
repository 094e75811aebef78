package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/domain/types"
)

type membershipRepo struct {
	pool *pgxpool.Pool
}

func (r *membershipRepo) Get(ctx context.Context, identityID, tenantID string) (*repository.Membership, error) {
	var m repository.Membership
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT identity_id, tenant_id, invitation_status, created_at
		FROM memberships
		WHERE identity_id = $1 AND tenant_id = $2`,
		identityID, tenantID,
	).Scan(&m.IdentityID, &m.TenantID, &status, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.InvitationStatus = types.InvitationStatus(status)
	return &m, nil
}

// Exists consulta la vista tenant_members, que es la relación que sirve el
// resto del portal (y puede atenderse desde una réplica).
func (r *membershipRepo) Exists(ctx context.Context, identityID, tenantID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenant_members
			WHERE identity_id = $1 AND tenant_id = $2
		)`, identityID, tenantID,
	).Scan(&ok)
	return ok, err
}

// ExistsDirect lee la join table base, siempre contra el primario. Cubre la
// ventana en la que una membresía recién insertada todavía no aparece en
// tenant_members.
func (r *membershipRepo) ExistsDirect(ctx context.Context, identityID, tenantID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE identity_id = $1 AND tenant_id = $2
		)`, identityID, tenantID,
	).Scan(&ok)
	return ok, err
}

func (r *membershipRepo) ListTenants(ctx context.Context, identityID string) ([]repository.TenantGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name, t.display_name, t.status, t.created_at,
		       coalesce(array_agg(DISTINCT d.domain) FILTER (WHERE d.domain IS NOT NULL), '{}'),
		       coalesce(array_agg(DISTINCT rg.role) FILTER (WHERE rg.role IS NOT NULL), '{}')
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		LEFT JOIN tenant_domains d ON d.tenant_id = t.id
		LEFT JOIN role_grants rg ON rg.tenant_id = t.id AND rg.identity_id = m.identity_id
		WHERE m.identity_id = $1
		GROUP BY t.id
		ORDER BY t.created_at`,
		identityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []repository.TenantGrant
	for rows.Next() {
		var g repository.TenantGrant
		var status string
		var roles []string
		if err := rows.Scan(
			&g.Tenant.ID, &g.Tenant.Name, &g.Tenant.DisplayName, &status,
			&g.Tenant.CreatedAt, &g.Tenant.Domains, &roles,
		); err != nil {
			return nil, err
		}
		g.Tenant.Status = types.TenantStatus(status)
		for _, role := range roles {
			g.Roles = append(g.Roles, types.Role(role))
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *membershipRepo) HasRole(ctx context.Context, identityID, tenantID string, role types.Role) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_grants
			WHERE identity_id = $1 AND tenant_id = $2 AND role = $3
		)`, identityID, tenantID, string(role),
	).Scan(&ok)
	return ok, err
}

// EnsureTenantUser provisiona (lazy) la fila de usuario del tenant.
// Idempotente: si la identidad ya tiene fila, no hace nada. Si el id
// preferido está tomado por otra fila, reintenta con uno autogenerado.
func (r *membershipRepo) EnsureTenantUser(ctx context.Context, input repository.EnsureTenantUserInput) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenant_users
			WHERE tenant_id = $1 AND identity_id = $2
		)`, input.TenantID, input.IdentityID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	id := input.PreferredID
	if id == "" {
		id = uuid.NewString()
	}

	err = r.insertTenantUser(ctx, id, input)
	if isUniqueViolation(err) {
		// Estado parcial previo: el id preferido quedó tomado por otra
		// fila. Caer a un id autogenerado.
		err = r.insertTenantUser(ctx, uuid.NewString(), input)
		if isUniqueViolation(err) {
			// Carrera con otra provisión de la misma identidad: ya existe.
			return nil
		}
	}
	return err
}

func (r *membershipRepo) insertTenantUser(ctx context.Context, id string, input repository.EnsureTenantUserInput) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_users (id, tenant_id, identity_id, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, identity_id) DO NOTHING`,
		id, input.TenantID, input.IdentityID, input.Email, string(input.DefaultRole),
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
