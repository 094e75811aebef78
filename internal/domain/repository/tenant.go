package repository

import (
	"context"
	"time"

	"github.com/Effham/wellvois/internal/domain/types"
)

// Tenant representa una unidad aislada de datos con uno o más dominios.
type Tenant struct {
	ID          string
	Name        string
	DisplayName string
	Status      types.TenantStatus

	// Domains son los dominios ligados al tenant ordenados por prioridad.
	// El primero es el dominio primario usado para el hand-off SSO.
	Domains []string

	CreatedAt time.Time
}

// PrimaryDomain retorna el dominio primario del tenant, o "" si no tiene.
func (t *Tenant) PrimaryDomain() string {
	if len(t.Domains) == 0 {
		return ""
	}
	return t.Domains[0]
}

// RequiresBillingSetup retorna true si el tenant está bloqueado por billing.
func (t *Tenant) RequiresBillingSetup() bool {
	return t.Status == types.TenantRequiresBilling
}

// TenantRepository define el acceso a tenants en el store central.
type TenantRepository interface {
	// GetByID busca un tenant por ID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Tenant, error)

	// GetByDomain resuelve un tenant por cualquiera de sus dominios
	// (matching exacto del host, sin puerto).
	GetByDomain(ctx context.Context, domain string) (*Tenant, error)
}
