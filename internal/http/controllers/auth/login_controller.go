package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dto "github.com/Effham/wellvois/internal/http/dto/auth"
	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/http/helpers"
	"github.com/Effham/wellvois/internal/http/middlewares"
	svc "github.com/Effham/wellvois/internal/http/services/auth"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/session"
)

const maxLoginBodySize = 64 * 1024 // 64KB

// CookieConfig describe cómo emitir el cookie de sesión desde el controller.
type CookieConfig struct {
	Name     string
	SameSite string
	Secure   bool
	TTL      time.Duration
}

// LoginController maneja los endpoints del flujo de login central.
type LoginController struct {
	service  svc.LoginService
	sessions *session.Manager
	cookies  CookieConfig
}

// NewLoginController crea el controller de login.
func NewLoginController(service svc.LoginService, sessions *session.Manager, cookies CookieConfig) *LoginController {
	return &LoginController{service: service, sessions: sessions, cookies: cookies}
}

// Prepare maneja GET /login: guarda en sesión el deep link pendiente y el
// token de documentos, si vienen en la query.
func (c *LoginController) Prepare(w http.ResponseWriter, r *http.Request) {
	sess := middlewares.GetSession(r.Context())
	if sess == nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable)
		return
	}

	changed := false
	if intended := strings.TrimSpace(r.URL.Query().Get("intended")); intended != "" {
		sess.Data.Intended = intended
		changed = true
	}
	if tok := strings.TrimSpace(r.URL.Query().Get("document_access_token")); tok != "" {
		sess.Data.DocumentAccessToken = tok
		changed = true
	}
	if changed {
		// El middleware ya emitió el cookie; solo persistimos los datos.
		if err := c.sessions.Save(r.Context(), sess); err != nil {
			httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": sess.Data.CSRFToken})
}

// Login maneja POST /login y POST /login/{intent}
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	sess := middlewares.GetSession(ctx)
	if sess == nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)
	defer r.Body.Close()

	var req dto.LoginRequest
	if !parseBody(w, r, func() {
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
		req.Intent = r.PostFormValue("intent")
	}, &req) {
		return
	}

	opts := svc.LoginOptions{
		RouteIntent: chi.URLParam(r, "intent"),
		QueryIntent: r.URL.Query().Get("intent"),
		ClientIP:    helpers.ClientIP(r),
	}

	res, err := c.service.LoginPassword(ctx, sess, req, opts)
	c.refreshCookie(w, sess, res)
	if err != nil {
		log.Debug("login failed", logger.Err(err))
		c.respondFlowError(w, r, res, err)
		return
	}

	c.respondResult(w, r, res)
}

// SecondFactor maneja POST /login/2fa
func (c *LoginController) SecondFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.SecondFactor"))

	sess := middlewares.GetSession(ctx)
	if sess == nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)
	defer r.Body.Close()

	var req dto.SecondFactorRequest
	if !parseBody(w, r, func() {
		req.Code = r.PostFormValue("code")
	}, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields)
		return
	}

	res, err := c.service.CompleteSecondFactor(ctx, sess, req.Code)
	c.refreshCookie(w, sess, res)
	if err != nil {
		log.Debug("second factor failed", logger.Err(err))
		c.respondFlowError(w, r, res, err)
		return
	}

	c.respondResult(w, r, res)
}

// Logout maneja POST /logout
func (c *LoginController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess := middlewares.GetSession(ctx)
	if sess == nil {
		helpers.Redirect(w, r, svc.PathIntentSelection)
		return
	}

	fresh, err := c.service.Logout(ctx, sess)
	if err != nil {
		http.SetCookie(w, helpers.BuildDeletionCookie(c.cookies.Name, c.cookies.SameSite, c.cookies.Secure))
	} else {
		http.SetCookie(w, helpers.BuildCookie(c.cookies.Name, fresh.ID, c.cookies.SameSite, c.cookies.Secure, c.cookies.TTL))
	}
	helpers.Redirect(w, r, svc.PathIntentSelection)
}

// parseBody decodifica JSON o form según Content-Type.
func parseBody(w http.ResponseWriter, r *http.Request, fromForm func(), v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "application/json"):
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			httperrors.WriteError(w, httperrors.ErrInvalidJSON)
			return false
		}
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid form"))
			return false
		}
		fromForm()
	default:
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unsupported content type"))
		return false
	}
	return true
}

// refreshCookie re-emite el cookie si el service rotó o desarmó la sesión.
func (c *LoginController) refreshCookie(w http.ResponseWriter, in *session.Session, res *svc.Result) {
	if res == nil || res.Session == nil {
		http.SetCookie(w, helpers.BuildDeletionCookie(c.cookies.Name, c.cookies.SameSite, c.cookies.Secure))
		return
	}
	if res.Session.ID != in.ID {
		http.SetCookie(w, helpers.BuildCookie(c.cookies.Name, res.Session.ID, c.cookies.SameSite, c.cookies.Secure, c.cookies.TTL))
	}
}

func (c *LoginController) respondResult(w http.ResponseWriter, r *http.Request, res *svc.Result) {
	if helpers.WantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(dto.LoginResponse{
			RedirectTo:           res.RedirectTo,
			SecondFactorRequired: res.Outcome == svc.OutcomeSecondFactor,
		})
		return
	}
	http.Redirect(w, r, res.RedirectTo, http.StatusSeeOther)
}

// respondFlowError colapsa los errores del flujo en la respuesta pública.
// Para navegación clásica el error viaja como query param del redirect de
// retorno; para XHR se responde el AppError.
func (c *LoginController) respondFlowError(w http.ResponseWriter, r *http.Request, res *svc.Result, err error) {
	appErr := mapFlowError(err)

	if helpers.WantsJSON(r) {
		httperrors.WriteError(w, appErr)
		return
	}

	back := svc.PathIntentSelection
	if res != nil && res.RedirectTo != "" {
		back = res.RedirectTo
	}
	u, perr := url.Parse(back)
	if perr != nil {
		u = &url.URL{Path: svc.PathIntentSelection}
	}
	q := u.Query()
	q.Set("error", strings.ToLower(appErr.Code))
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

func mapFlowError(err error) *httperrors.AppError {
	switch {
	case errors.Is(err, svc.ErrMissingFields):
		return httperrors.ErrMissingFields
	case errors.Is(err, svc.ErrInvalidCredentials), errors.Is(err, svc.ErrUserDisabled):
		// Deliberadamente el mismo mensaje: no revelar si la cuenta existe
		// o está deshabilitada.
		return httperrors.ErrInvalidCredentials
	case errors.Is(err, svc.ErrWrongAccountType):
		return httperrors.ErrWrongAccountType
	case errors.Is(err, svc.ErrTenantNotFound), errors.Is(err, svc.ErrMembershipDenied):
		return httperrors.ErrAccessDenied
	case errors.Is(err, svc.ErrNoPendingChallenge):
		return httperrors.ErrSessionExpired
	case errors.Is(err, svc.ErrSecondFactorFailed):
		return httperrors.ErrSecondFactorFailed
	case errors.Is(err, svc.ErrHandoffFailed):
		return httperrors.ErrServiceUnavailable
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}
