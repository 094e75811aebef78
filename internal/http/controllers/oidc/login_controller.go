package oidc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/http/helpers"
	svc "github.com/Effham/wellvois/internal/http/services/oidc"
	"github.com/Effham/wellvois/internal/idp"
	"github.com/Effham/wellvois/internal/observability/logger"
)

// CookieConfig describe el cookie de sesión central.
type CookieConfig struct {
	Name     string
	SameSite string
	Secure   bool
	TTL      time.Duration
}

// LoginController maneja el flujo federado contra el provider externo.
type LoginController struct {
	service svc.LoginService
	cookies CookieConfig
}

// NewLoginController crea el controller federado.
func NewLoginController(service svc.LoginService, cookies CookieConfig) *LoginController {
	return &LoginController{service: service, cookies: cookies}
}

// Begin maneja GET /auth/oidc/login: redirige al provider.
// El query param tenant es opcional y viaja embebido en el state.
func (c *LoginController) Begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantHint := strings.TrimSpace(r.URL.Query().Get("tenant"))
	authURL, err := c.service.BeginLogin(ctx, tenantHint)
	if err != nil {
		logger.From(ctx).Error("authorization url build failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback maneja GET /auth/oidc/callback: el único redirect URI
// registrado en el provider.
func (c *LoginController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Callback"))

	q := r.URL.Query()
	if provErr := q.Get("error"); provErr != "" {
		log.Info("provider returned error", logger.String("provider_error", provErr))
		httperrors.WriteError(w, httperrors.ErrProviderUnavailable)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter)
		return
	}

	res, err := c.service.HandleCallback(ctx, code, state)
	if err != nil {
		log.Info("federated callback rejected", logger.Err(err))
		httperrors.WriteError(w, mapCallbackError(err))
		return
	}

	http.SetCookie(w, helpers.BuildCookie(c.cookies.Name, res.Session.ID, c.cookies.SameSite, c.cookies.Secure, c.cookies.TTL))
	http.Redirect(w, r, res.RedirectTo, http.StatusSeeOther)
}

func mapCallbackError(err error) *httperrors.AppError {
	switch {
	case errors.Is(err, idp.ErrInvalidState):
		return httperrors.ErrAccessDenied.WithDetail("El intento de login expiró o ya fue usado.")
	case errors.Is(err, idp.ErrUnknownAccount):
		return httperrors.ErrAccessDenied.WithDetail("La cuenta no está habilitada; contacte a su administrador.")
	case errors.Is(err, idp.ErrTenantBoundAccount):
		return httperrors.ErrAccessDenied.WithDetail("Esta cuenta ingresa desde el dominio de su organización.")
	case errors.Is(err, idp.ErrExchangeFailed), errors.Is(err, idp.ErrProviderError):
		return httperrors.ErrProviderUnavailable
	case errors.Is(err, idp.ErrMalformedToken):
		return httperrors.ErrProviderUnavailable
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}
