package repository

import (
	"context"
	"time"

	"github.com/Effham/wellvois/internal/domain/types"
)

// Membership es la relación many-to-many Identity–Tenant con su estado
// de invitación.
type Membership struct {
	IdentityID       string
	TenantID         string
	InvitationStatus types.InvitationStatus
	CreatedAt        time.Time
}

// TenantGrant es un tenant junto con los roles que la identidad tiene en él.
type TenantGrant struct {
	Tenant Tenant
	Roles  []types.Role
}

// HasAdminEligibleRole retorna true si algún rol habilita el dashboard admin.
func (g TenantGrant) HasAdminEligibleRole() bool {
	for _, r := range g.Roles {
		if r.AdminEligible() {
			return true
		}
	}
	return false
}

// MembershipRepository define el acceso a membresías y roles por tenant.
type MembershipRepository interface {
	// Get obtiene la membresía de una identidad en un tenant.
	// Retorna ErrNotFound si no hay fila.
	Get(ctx context.Context, identityID, tenantID string) (*Membership, error)

	// Exists verifica membresía vía la relación normal (puede servir
	// lecturas cacheadas/replicadas).
	Exists(ctx context.Context, identityID, tenantID string) (bool, error)

	// ExistsDirect consulta la join table con una lectura directa al
	// primario. Es el fallback para la ventana read-after-write en la que
	// una fila recién creada todavía no es visible vía Exists.
	ExistsDirect(ctx context.Context, identityID, tenantID string) (bool, error)

	// ListTenants retorna los tenants de una identidad con sus roles.
	ListTenants(ctx context.Context, identityID string) ([]TenantGrant, error)

	// HasRole verifica si la identidad tiene el rol en el tenant.
	HasRole(ctx context.Context, identityID, tenantID string, role types.Role) (bool, error)

	// EnsureTenantUser provisiona (lazy) la fila de usuario del tenant con
	// un rol por defecto. Idempotente: si la fila ya existe no hace nada;
	// si el id preferido choca, cae a un id autogenerado.
	EnsureTenantUser(ctx context.Context, input EnsureTenantUserInput) error
}

// EnsureTenantUserInput describe la provisión lazy de un usuario de tenant.
type EnsureTenantUserInput struct {
	TenantID   string
	IdentityID string
	Email      string
	// PreferredID es el id a intentar primero (tipicamente el id de la
	// identidad central). En conflicto se usa uno autogenerado.
	PreferredID string
	DefaultRole types.Role
}
