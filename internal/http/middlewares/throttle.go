package middlewares

import (
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/http/helpers"
	"github.com/Effham/wellvois/internal/metrics"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/rate"
)

// WithThrottle limita intentos por IP de cliente en métodos mutantes.
// Protege el login de fuerza bruta; un cache caído deja pasar (el limiter
// es fail-open) pero se loguea.
func WithThrottle(limiter rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), helpers.ClientIP(r))
			if err != nil {
				logger.From(r.Context()).Warn("throttle store unavailable",
					logger.Component("throttle.middleware"),
					logger.Err(err),
				)
			}
			if !res.Allowed {
				metrics.LoginThrottled.Inc()
				logger.From(r.Context()).Warn("login attempt throttled",
					logger.Component("throttle.middleware"),
					logger.Path(r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)))
				httperrors.WriteError(w, httperrors.ErrTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
