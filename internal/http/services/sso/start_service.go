// Package sso contiene el servicio del lado tenant del hand-off: canjear
// el código one-time y abrir la sesión local del tenant.
package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/Effham/wellvois/internal/metrics"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/session"
	ssocore "github.com/Effham/wellvois/internal/sso"
)

// RedeemBroker canjea códigos SSO. *sso.Broker lo implementa.
type RedeemBroker interface {
	Redeem(ctx context.Context, code, requestingSessionID string) (*ssocore.Payload, error)
}

// StartService abre sesiones de tenant a partir de códigos SSO.
type StartService interface {
	Start(ctx context.Context, code, currentSessionID string) (*StartResult, error)
}

// StartDeps contiene las dependencias del servicio.
type StartDeps struct {
	Broker   RedeemBroker
	Sessions *session.Manager
}

// StartResult es la sesión de tenant recién abierta y a dónde continuar.
type StartResult struct {
	RedirectTo string
	Session    *session.Session
}

type startService struct {
	deps StartDeps
}

// NewStartService crea el servicio.
func NewStartService(deps StartDeps) StartService {
	return &startService{deps: deps}
}

// Errores de canje. El controller los colapsa todos en un único mensaje
// genérico hacia el usuario.
var (
	ErrMissingCode  = fmt.Errorf("missing sso code")
	ErrRedeemDenied = fmt.Errorf("sso redemption denied")
)

func (s *startService) Start(ctx context.Context, code, currentSessionID string) (*StartResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("sso.start"),
		logger.Op("Start"),
	)

	if code == "" {
		metrics.SSORedemptions.WithLabelValues("missing_code").Inc()
		return nil, ErrMissingCode
	}

	// Paso 1: Canje atómico. Cualquier causa (inexistente, usado, expirado,
	// membresía revocada, store caído) termina acá, fail-closed.
	payload, err := s.deps.Broker.Redeem(ctx, code, currentSessionID)
	if err != nil {
		metrics.SSORedemptions.WithLabelValues(redeemOutcome(err)).Inc()
		log.Info("sso redemption denied", logger.Err(err), logger.CodeHint(code))
		return nil, fmt.Errorf("%w: %w", ErrRedeemDenied, err)
	}

	// Paso 2: Sesión de tenant nueva, jamás reutilizar la que llegó.
	sess, err := s.deps.Sessions.New(ctx)
	if err != nil {
		metrics.SSORedemptions.WithLabelValues("session_error").Inc()
		return nil, err
	}
	sess.Data.UserID = payload.UserID
	sess.Data.TwoFAPassed = payload.SecondFactorPassed
	sess.Data.DocumentIDsFilter = payload.DocumentIDs
	sess.Data.LoginTime = payload.IssuedAt.Unix()
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	redirect := payload.RedirectPath
	if redirect == "" {
		redirect = "/dashboard"
	}

	metrics.SSORedemptions.WithLabelValues("success").Inc()
	log.Info("sso redemption ok",
		logger.UserID(payload.UserID),
		logger.TenantID(payload.TenantID),
	)
	return &StartResult{RedirectTo: redirect, Session: sess}, nil
}

func redeemOutcome(err error) string {
	switch {
	case errors.Is(err, ssocore.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ssocore.ErrCodeExpired):
		return "expired"
	case errors.Is(err, ssocore.ErrMembershipDenied):
		return "membership_denied"
	default:
		return "error"
	}
}
