// Package oidc contiene el servicio del login federado contra el provider
// externo. Superficie central-only: las cuentas ligadas a tenants se
// rechazan en la resolución.
package oidc

import (
	"context"
	"time"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/idp"
	"github.com/Effham/wellvois/internal/metrics"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/session"
)

// LoginService define el flujo authorization-code completo.
type LoginService interface {
	// BeginLogin arma la URL de autorización. tenantHint es opcional y
	// viaja embebido en el state.
	BeginLogin(ctx context.Context, tenantHint string) (string, error)

	// HandleCallback canjea el code, resuelve la identidad y abre la
	// sesión central.
	HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error)
}

// IdentityResolver mapea claims del provider a una identidad local.
// *idp.Resolver lo implementa.
type IdentityResolver interface {
	Resolve(ctx context.Context, claims idp.Claims) (*repository.Identity, error)
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Client   *idp.Client
	Resolver IdentityResolver
	Sessions *session.Manager
	Clock    func() time.Time // nil = time.Now
}

// CallbackResult es el resultado exitoso del callback.
type CallbackResult struct {
	RedirectTo string
	Session    *session.Session
}

type loginService struct {
	deps Deps
}

// NewLoginService crea el servicio federado.
func NewLoginService(deps Deps) LoginService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &loginService{deps: deps}
}

func (s *loginService) BeginLogin(ctx context.Context, tenantHint string) (string, error) {
	authURL, _, err := s.deps.Client.BuildAuthorizationURL(ctx, tenantHint)
	return authURL, err
}

func (s *loginService) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("oidc.login"),
		logger.Op("HandleCallback"),
	)

	// Paso 1: Exchange. El state se valida y consume (single use) adentro.
	toks, tenantHint, err := s.deps.Client.ExchangeCode(ctx, code, state)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("federated", "exchange_failed").Inc()
		return nil, err
	}
	if tenantHint != "" {
		log = log.With(logger.TenantID(tenantHint))
	}

	// Paso 2: Claims del ID token; userinfo como fallback si faltan los
	// claims mínimos.
	claims, err := s.deps.Client.DecodeIdentity(toks.IDToken)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("federated", "malformed_token").Inc()
		return nil, err
	}
	if claims.Subject() == "" || claims.Email() == "" {
		log.Debug("id token missing core claims, falling back to userinfo")
		claims, err = s.deps.Client.FetchUserinfo(ctx, toks.AccessToken)
		if err != nil {
			metrics.LoginAttempts.WithLabelValues("federated", "provider_error").Inc()
			return nil, err
		}
	}

	// Paso 3: Resolución de identidad local (sin creación implícita).
	identity, err := s.deps.Resolver.Resolve(ctx, claims)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("federated", "resolution_denied").Inc()
		return nil, err
	}
	log = log.With(logger.UserID(identity.ID))

	// Paso 4: Sesión central nueva.
	sess, err := s.deps.Sessions.New(ctx)
	if err != nil {
		return nil, err
	}
	sess.Data.UserID = identity.ID
	sess.Data.LoginTime = s.deps.Clock().Unix()
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues("federated", "success").Inc()
	log.Info("federated login ok")
	return &CallbackResult{RedirectTo: "/dashboard", Session: sess}, nil
}
