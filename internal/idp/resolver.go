package idp

import (
	"context"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/observability/logger"
)

// Resolver aplica la política de resolución de identidad en el callback:
// match por subject del provider o por email (gana el subject), backfill
// del subject, sin creación implícita de cuentas, y rechazo de cuentas
// ligadas a tenants (esta superficie es central-only).
type Resolver struct {
	identities  repository.IdentityRepository
	memberships repository.MembershipRepository
}

// NewResolver crea el resolver del callback.
func NewResolver(identities repository.IdentityRepository, memberships repository.MembershipRepository) *Resolver {
	return &Resolver{identities: identities, memberships: memberships}
}

// Resolve mapea claims del provider a una identidad existente.
//
// Orden: subject primero; si no hay match, email. Si el match fue por email
// y el subject guardado falta o difiere, se trata como la misma identidad y
// se hace backfill del subject. Sin match: ErrUnknownAccount. Con
// membresías en cualquier tenant: ErrTenantBoundAccount.
func (r *Resolver) Resolve(ctx context.Context, claims Claims) (*repository.Identity, error) {
	log := logger.From(ctx).With(logger.Component("idp"), logger.Op("Resolve"))

	subject := claims.Subject()
	email := claims.Email()

	var identity *repository.Identity

	if subject != "" {
		found, err := r.identities.GetByProviderSubject(ctx, subject)
		switch {
		case err == nil:
			identity = found
		case !repository.IsNotFound(err):
			return nil, err
		}
	}

	if identity == nil && email != "" {
		found, err := r.identities.GetByEmail(ctx, email)
		switch {
		case err == nil:
			identity = found
		case !repository.IsNotFound(err):
			return nil, err
		}

		// Backfill: match por email con subject faltante o distinto se
		// trata como la misma identidad y se corrige el subject guardado.
		if identity != nil && subject != "" {
			if identity.ProviderSubjectID == nil || *identity.ProviderSubjectID != subject {
				if err := r.identities.SetProviderSubject(ctx, identity.ID, subject); err != nil {
					log.Warn("subject backfill failed", logger.UserID(identity.ID), logger.Err(err))
				} else {
					log.Info("provider subject backfilled", logger.UserID(identity.ID))
				}
			}
		}
	}

	if identity == nil {
		log.Info("no matching identity for provider claims", logger.Email(email))
		return nil, ErrUnknownAccount
	}

	grants, err := r.memberships.ListTenants(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if len(grants) > 0 {
		log.Info("tenant-bound account rejected from central login",
			logger.UserID(identity.ID), logger.Count(len(grants)))
		return nil, ErrTenantBoundAccount
	}

	return identity, nil
}
