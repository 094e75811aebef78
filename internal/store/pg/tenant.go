package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/domain/types"
)

type tenantRepo struct {
	pool *pgxpool.Pool
}

// Los dominios se agregan ordenados por prioridad: el primero del array es
// el dominio primario.
const tenantSelect = `
	SELECT t.id, t.name, t.display_name, t.status, t.created_at,
	       coalesce(array_agg(d.domain ORDER BY d.priority) FILTER (WHERE d.domain IS NOT NULL), '{}')
	FROM tenants t
	LEFT JOIN tenant_domains d ON d.tenant_id = t.id
`

func scanTenant(row pgx.Row) (*repository.Tenant, error) {
	var t repository.Tenant
	var status string
	err := row.Scan(&t.ID, &t.Name, &t.DisplayName, &status, &t.CreatedAt, &t.Domains)
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = types.TenantStatus(status)
	return &t, nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		tenantSelect+` WHERE t.id = $1 GROUP BY t.id`, id))
}

func (r *tenantRepo) GetByDomain(ctx context.Context, domain string) (*repository.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, tenantSelect+`
		WHERE t.id = (SELECT tenant_id FROM tenant_domains WHERE lower(domain) = lower($1))
		GROUP BY t.id`, domain))
}
