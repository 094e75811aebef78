package middlewares

import (
	"net/http"
	"time"

	"github.com/Effham/wellvois/internal/http/helpers"
	"github.com/Effham/wellvois/internal/metrics"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/session"
)

// SessionConfig parametriza el middleware de sesión.
type SessionConfig struct {
	Manager    *session.Manager
	CookieName string
	SameSite   string
	Secure     bool
	TTL        time.Duration

	// AbsoluteTTL corta la sesión midiendo desde login_time, sin importar
	// la actividad. 0 = deshabilitado.
	AbsoluteTTL time.Duration
}

// WithSession carga (o crea) la sesión del request y la inyecta en el
// contexto. Aplica el timeout absoluto: una sesión pasada de su vida
// máxima se desarma y el request sigue con una vacía.
func WithSession(cfg SessionConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.From(ctx).With(logger.Component("session.middleware"))

			var sess *session.Session
			if ck, err := r.Cookie(cfg.CookieName); err == nil && ck.Value != "" {
				sess, err = cfg.Manager.Get(ctx, ck.Value)
				if err != nil && err != session.ErrNotFound {
					log.Error("session load failed", logger.Err(err))
				}
			}

			// Timeout absoluto desde login_time.
			if sess != nil && cfg.AbsoluteTTL > 0 && sess.Data.LoginTime > 0 {
				loginAt := time.Unix(sess.Data.LoginTime, 0)
				if time.Since(loginAt) > cfg.AbsoluteTTL {
					log.Info("session past absolute lifetime, tearing down")
					metrics.SessionTeardowns.Inc()
					fresh, err := cfg.Manager.Teardown(ctx, sess.ID)
					if err != nil {
						log.Error("session teardown failed", logger.Err(err))
						sess = nil
					} else {
						sess = fresh
					}
				}
			}

			if sess == nil {
				fresh, err := cfg.Manager.New(ctx)
				if err != nil {
					log.Error("session create failed", logger.Err(err))
					next.ServeHTTP(w, r)
					return
				}
				sess = fresh
			}

			http.SetCookie(w, helpers.BuildCookie(cfg.CookieName, sess.ID, cfg.SameSite, cfg.Secure, cfg.TTL))
			next.ServeHTTP(w, r.WithContext(setSession(ctx, sess)))
		})
	}
}
