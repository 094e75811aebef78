// Package tenancy decide si una identidad puede acceder a un tenant y
// resuelve tenants por dominio. Toda ambigüedad resuelve a denegar.
package tenancy

import (
	"context"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/observability/logger"
)

// Verifier verifica membresía Identity–Tenant.
type Verifier struct {
	identities  repository.IdentityRepository
	memberships repository.MembershipRepository
}

// NewVerifier crea el verificador de membresías.
func NewVerifier(identities repository.IdentityRepository, memberships repository.MembershipRepository) *Verifier {
	return &Verifier{identities: identities, memberships: memberships}
}

// Verify retorna true solo si la identidad puede acceder al tenant.
//
// Orden de chequeos:
//  1. La identidad existe (ausente = deny).
//  2. Existe la membresía. Si la relación normal dice que no, se consulta
//     la join table con una lectura directa: una fila creada momentos antes
//     en la misma cadena de requests puede no ser visible todavía
//     (read-after-write race). Si la directa la encuentra, acceso ok.
//  3. Identidad patient-only: además la invitación debe estar exactamente
//     en "accepted". Cualquier otro estado deniega aunque el paso 2 pase.
//  4. Practitioners (o patient+practitioner) saltean el gate extra.
func (v *Verifier) Verify(ctx context.Context, identityID, tenantID string) bool {
	log := logger.From(ctx).With(
		logger.Component("tenancy.verifier"),
		logger.UserID(identityID),
		logger.TenantID(tenantID),
	)

	identity, err := v.identities.GetByID(ctx, identityID)
	if err != nil {
		if !repository.IsNotFound(err) {
			log.Error("identity load failed, denying", logger.Err(err))
		} else {
			log.Info("identity not found, denying")
		}
		return false
	}

	exists, err := v.memberships.Exists(ctx, identityID, tenantID)
	if err != nil {
		log.Error("membership check failed, denying", logger.Err(err))
		return false
	}
	if !exists {
		direct, err := v.memberships.ExistsDirect(ctx, identityID, tenantID)
		if err != nil {
			log.Error("direct membership check failed, denying", logger.Err(err))
			return false
		}
		if !direct {
			log.Info("no membership, denying")
			return false
		}
		log.Info("membership race resolved via direct join-table read")
	}

	if identity.IsPatientOnly() {
		m, err := v.memberships.Get(ctx, identityID, tenantID)
		if err != nil {
			log.Error("invitation status load failed, denying", logger.Err(err))
			return false
		}
		if !m.InvitationStatus.GrantsPatientAccess() {
			log.Info("patient invitation not accepted, denying",
				logger.String("invitation_status", string(m.InvitationStatus)))
			return false
		}
	}

	return true
}
