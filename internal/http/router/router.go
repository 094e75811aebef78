// Package router arma el árbol de rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctl "github.com/Effham/wellvois/internal/http/controllers/auth"
	healthctl "github.com/Effham/wellvois/internal/http/controllers/health"
	oidcctl "github.com/Effham/wellvois/internal/http/controllers/oidc"
	ssoctl "github.com/Effham/wellvois/internal/http/controllers/sso"
	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/http/middlewares"
	"github.com/Effham/wellvois/internal/rate"
)

// Deps son los controllers y la configuración de sesión del router.
type Deps struct {
	Login    *authctl.LoginController
	OIDC     *oidcctl.LoginController
	SSOStart *ssoctl.StartController
	Health   *healthctl.Controller

	Session      middlewares.SessionConfig
	LoginLimiter rate.Limiter
}

// New construye el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithLogging())
	r.Use(middlewares.WithRecover())
	r.Use(middlewares.WithSecurityHeaders())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// Health: sin sesión, sin no-store.
	r.Get("/healthz", deps.Health.Live)
	r.Get("/readyz", deps.Health.Ready)

	// Flujo de login central: sesión + no-store + CSRF y throttle en mutaciones.
	r.Group(func(g chi.Router) {
		g.Use(middlewares.WithNoStore())
		g.Use(middlewares.WithThrottle(deps.LoginLimiter))
		g.Use(middlewares.WithSession(deps.Session))
		g.Use(middlewares.WithCSRF())

		g.Get("/login", deps.Login.Prepare)
		g.Post("/login", deps.Login.Login)
		g.Post("/login/{intent}", deps.Login.Login)
		g.Post("/login/2fa", deps.Login.SecondFactor)
		g.Post("/logout", deps.Login.Logout)
	})

	// Login federado: el state server-side hace de CSRF acá.
	r.Group(func(g chi.Router) {
		g.Use(middlewares.WithNoStore())

		g.Get("/auth/oidc/login", deps.OIDC.Begin)
		g.Get("/auth/oidc/callback", deps.OIDC.Callback)
	})

	// Canje SSO del lado tenant: el código one-time es la credencial.
	r.Group(func(g chi.Router) {
		g.Use(middlewares.WithNoStore())

		g.Get("/sso/start", deps.SSOStart.Start)
	})

	return r
}
