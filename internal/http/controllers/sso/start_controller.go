package sso

import (
	"net/http"
	"strings"
	"time"

	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/http/helpers"
	svc "github.com/Effham/wellvois/internal/http/services/sso"
	"github.com/Effham/wellvois/internal/observability/logger"
)

// CookieConfig describe el cookie de sesión del lado tenant.
type CookieConfig struct {
	Name     string
	SameSite string
	Secure   bool
	TTL      time.Duration
}

// StartController maneja GET /sso/start en el dominio del tenant.
type StartController struct {
	service svc.StartService
	cookies CookieConfig
}

// NewStartController crea el controller de canje SSO.
func NewStartController(service svc.StartService, cookies CookieConfig) *StartController {
	return &StartController{service: service, cookies: cookies}
}

// Start canjea el código de la query y abre la sesión del tenant.
// Toda denegación responde lo mismo: un único mensaje genérico, sin
// distinguir código inexistente, usado, expirado o membresía revocada.
func (c *StartController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("StartController.Start"))

	code := strings.TrimSpace(r.URL.Query().Get("code"))

	var currentSID string
	if ck, err := r.Cookie(c.cookies.Name); err == nil {
		currentSID = ck.Value
	}

	res, err := c.service.Start(ctx, code, currentSID)
	if err != nil {
		log.Info("sso start denied", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrAccessDenied)
		return
	}

	http.SetCookie(w, helpers.BuildCookie(c.cookies.Name, res.Session.ID, c.cookies.SameSite, c.cookies.Secure, c.cookies.TTL))
	http.Redirect(w, r, res.RedirectTo, http.StatusSeeOther)
}
