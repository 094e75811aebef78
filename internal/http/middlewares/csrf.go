package middlewares

import (
	"net/http"

	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/observability/logger"
	tokens "github.com/Effham/wellvois/internal/security/token"
)

// WithCSRF valida el token CSRF de la sesión en métodos mutantes.
// El token viaja en el header X-CSRF-Token o en el form field csrf_token.
// Requiere WithSession antes en la cadena.
func WithCSRF() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			sess := GetSession(r.Context())
			if sess == nil || sess.Data.CSRFToken == "" {
				httperrors.WriteError(w, httperrors.ErrForbidden)
				return
			}

			got := r.Header.Get("X-CSRF-Token")
			if got == "" {
				got = r.PostFormValue("csrf_token")
			}
			if !tokens.ConstantTimeEquals(got, sess.Data.CSRFToken) {
				logger.From(r.Context()).Warn("csrf token mismatch",
					logger.Component("csrf.middleware"),
					logger.Path(r.URL.Path),
				)
				httperrors.WriteError(w, httperrors.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
