// Package auth contiene el orquestador del login central: resolución de
// intent, paso de credenciales, desvío por segundo factor y resolución de
// destino (dashboard central o hand-off SSO a un tenant).
package auth

import (
	"context"
	"time"

	"github.com/Effham/wellvois/internal/domain/repository"
	dto "github.com/Effham/wellvois/internal/http/dto/auth"
	"github.com/Effham/wellvois/internal/session"
	"github.com/Effham/wellvois/internal/sso"
)

// LoginService define las operaciones del flujo de login central.
type LoginService interface {
	// LoginPassword ejecuta el paso de credenciales y, si no hay desvío por
	// 2FA, resuelve el destino final. El Result lleva SIEMPRE la sesión
	// resultante (regenerada o desarmada), incluso cuando err != nil.
	LoginPassword(ctx context.Context, sess *session.Session, in dto.LoginRequest, opts LoginOptions) (*Result, error)

	// CompleteSecondFactor valida el código TOTP pendiente y continúa hacia
	// la resolución de destino con el intent guardado en la sesión.
	CompleteSecondFactor(ctx context.Context, sess *session.Session, code string) (*Result, error)

	// Logout desarma la sesión por completo y entrega una nueva vacía.
	Logout(ctx context.Context, sess *session.Session) (*session.Session, error)
}

// LoginOptions transporta los candidatos a intent fuera del body.
// Precedencia: RouteIntent > QueryIntent > intent persistido en sesión.
type LoginOptions struct {
	RouteIntent string
	QueryIntent string
	ClientIP    string
}

// Outcome clasifica el resultado terminal de una operación de login.
type Outcome string

const (
	// OutcomeRedirect: éxito; RedirectTo es dashboard, selección de tenant
	// o la URL de hand-off en el dominio del tenant.
	OutcomeRedirect Outcome = "redirect"

	// OutcomeSecondFactor: credenciales OK pero falta el TOTP.
	OutcomeSecondFactor Outcome = "second_factor"

	// OutcomeIntentSelection: no hubo intent válido; nada más se evaluó.
	OutcomeIntentSelection Outcome = "intent_selection"
)

// Result es el resultado de una operación del flujo.
type Result struct {
	Outcome    Outcome
	RedirectTo string

	// Session es la sesión vigente al terminar la operación. Puede diferir
	// de la de entrada: se regenera en cada cambio de privilegio y se
	// desarma ante estados inconsistentes.
	Session *session.Session
}

// CodeBroker emite códigos SSO y construye la URL de hand-off.
// *sso.Broker lo implementa; los tests usan fakes.
type CodeBroker interface {
	Issue(ctx context.Context, in sso.IssueInput) (string, error)
	BuildTenantRedirectURL(code string, tenant *repository.Tenant) (string, error)
}

// MembershipVerifier decide, fail-closed, si una identidad pertenece a un
// tenant. *tenancy.Verifier lo implementa.
type MembershipVerifier interface {
	Verify(ctx context.Context, identityID, tenantID string) bool
}

// TenantDomainResolver resuelve un host a su tenant.
// *tenancy.DomainResolver lo implementa.
type TenantDomainResolver interface {
	Resolve(ctx context.Context, host string) (*repository.Tenant, error)
}

// Clock permite inyectar el tiempo en tests.
type Clock func() time.Time
