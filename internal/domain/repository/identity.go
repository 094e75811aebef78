package repository

import (
	"context"
	"time"
)

// Identity representa un principal del sistema central.
// Nunca se borra físicamente: solo estados blandos (DisabledAt).
type Identity struct {
	ID           string
	Email        string
	PasswordHash *string

	// ProviderSubjectID es el subject del identity provider externo
	// (Keycloak). Nil si la cuenta nunca hizo login federado.
	ProviderSubjectID *string

	// SecondFactorEnabled activa el desvío por 2FA en el login.
	SecondFactorEnabled bool
	TOTPSecret          *string // base32, nil si 2FA deshabilitado
	TOTPLastCounter     *int64  // anti-replay del último código aceptado

	// PractitionerID / PatientID referencian los registros de perfil
	// asociados. Una identidad puede tener ambos, uno o ninguno.
	PractitionerID *string
	PatientID      *string

	CreatedAt  time.Time
	DisabledAt *time.Time
}

// IsPractitioner retorna true si la identidad tiene registro de practitioner.
func (i *Identity) IsPractitioner() bool { return i.PractitionerID != nil }

// IsPatient retorna true si la identidad tiene registro de patient.
func (i *Identity) IsPatient() bool { return i.PatientID != nil }

// IsPatientOnly retorna true si es patient sin ser practitioner.
// Estas identidades tienen el gate extra de invitación aceptada y se
// rechazan del intent admin.
func (i *Identity) IsPatientOnly() bool { return i.IsPatient() && !i.IsPractitioner() }

// IdentityRepository define el acceso a identidades en el store central.
type IdentityRepository interface {
	// GetByID busca una identidad por ID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Identity, error)

	// GetByEmail busca una identidad por email (único, case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// GetByProviderSubject busca por subject del identity provider externo.
	GetByProviderSubject(ctx context.Context, subject string) (*Identity, error)

	// SetProviderSubject hace backfill del subject cuando el match fue por
	// email y el subject difiere o falta.
	SetProviderSubject(ctx context.Context, identityID, subject string) error

	// SetTOTPLastCounter persiste el counter TOTP aceptado (anti-replay).
	SetTOTPLastCounter(ctx context.Context, identityID string, counter int64) error
}
