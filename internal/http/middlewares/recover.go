package middlewares

import (
	"net/http"
	"runtime/debug"

	httperrors "github.com/Effham/wellvois/internal/http/errors"
	"github.com/Effham/wellvois/internal/observability/logger"
)

// WithRecover atrapa panics del handler, los loguea con stack y responde
// un 500 genérico en vez de tirar la conexión.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Any("panic", rec),
						logger.String("stack", string(debug.Stack())),
					)
					httperrors.WriteError(w, httperrors.ErrInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
