package auth

import (
	"context"
	"strings"

	"github.com/Effham/wellvois/internal/domain/types"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/security/totp"
	"github.com/Effham/wellvois/internal/session"
)

// CompleteSecondFactor valida el TOTP pendiente en la sesión y, si pasa,
// continúa hacia la resolución de destino con el intent que quedó guardado
// antes del desvío.
func (s *loginService) CompleteSecondFactor(ctx context.Context, sess *session.Session, code string) (*Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("CompleteSecondFactor"),
	)

	userID := sess.Data.TwoFAUserID
	if userID == "" {
		log.Debug("no pending second factor challenge")
		return &Result{Session: sess}, ErrNoPendingChallenge
	}
	log = log.With(logger.UserID(userID))

	identity, err := s.deps.Identities.GetByID(ctx, userID)
	if err != nil {
		return &Result{Session: sess}, err
	}
	if identity.DisabledAt != nil {
		log.Info("identity disabled mid-challenge")
		return s.hardFail(ctx, sess, PathIntentSelection, ErrUserDisabled)
	}
	if identity.TOTPSecret == nil || *identity.TOTPSecret == "" {
		// 2FA habilitado sin secreto es un estado corrupto.
		log.Error("second factor enabled without secret")
		return s.hardFail(ctx, sess, PathIntentSelection, ErrSecondFactorFailed)
	}

	secret, err := totp.DecodeSecret(*identity.TOTPSecret)
	if err != nil {
		log.Error("totp secret undecodable", logger.Err(err))
		return s.hardFail(ctx, sess, PathIntentSelection, ErrSecondFactorFailed)
	}

	code = strings.TrimSpace(code)
	ok, counter := totp.Verify(secret, code, s.deps.Clock(), s.deps.TOTPWindow, identity.TOTPLastCounter)
	if !ok {
		log.Info("totp verification failed")
		return &Result{Session: sess}, ErrSecondFactorFailed
	}

	// Anti-replay: persistir el counter aceptado antes de abrir la sesión.
	if err := s.deps.Identities.SetTOTPLastCounter(ctx, identity.ID, counter); err != nil {
		log.Error("totp counter persist failed", logger.Err(err))
		return &Result{Session: sess}, err
	}

	sess.Data.UserID = identity.ID
	sess.Data.TwoFAUserID = ""
	sess.Data.TwoFAPassed = true
	if sess.Data.LoginTime == 0 {
		sess.Data.LoginTime = s.deps.Clock().Unix()
	}

	// Pasar el 2FA también es un cambio de privilegio.
	fresh, err := s.deps.Sessions.Regenerate(ctx, sess)
	if err != nil {
		return &Result{Session: sess}, err
	}
	sess = fresh

	intent, ok2 := types.ParseIntent(sess.Data.LoginIntent)
	if !ok2 {
		// El intent se perdió entre el challenge y la verificación.
		log.Warn("login intent missing after second factor")
		return &Result{Outcome: OutcomeIntentSelection, RedirectTo: PathIntentSelection, Session: sess}, nil
	}

	log.Info("second factor passed", logger.Intent(string(intent)))
	return s.resolveDestination(ctx, sess, identity, intent)
}

// Logout desarma la sesión actual y entrega una vacía.
func (s *loginService) Logout(ctx context.Context, sess *session.Session) (*session.Session, error) {
	logger.From(ctx).Info("session logout",
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Logout"),
	)
	return s.deps.Sessions.Teardown(ctx, sess.ID)
}
