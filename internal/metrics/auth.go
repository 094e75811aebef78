package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth/SSO Prometheus metrics. Standalone package para evitar ciclos de
// import entre servicios y HTTP.

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Intentos de login por intent y resultado",
	}, []string{"intent", "outcome"})

	SecondFactorChallenges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_second_factor_challenges_total",
		Help: "Desvíos a segundo factor",
	})

	SSOCodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_codes_issued_total",
		Help: "Códigos SSO emitidos",
	})

	SSORedemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_redemptions_total",
		Help: "Redenciones de códigos SSO por resultado",
	}, []string{"outcome"})

	SessionTeardowns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_teardowns_total",
		Help: "Desarmes completos de sesión por estado inconsistente",
	})

	LoginThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_throttled_total",
		Help: "Intentos de login rechazados por rate limit",
	})
)

// Register registra las métricas de auth en el registry dado (default si nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts,
		SecondFactorChallenges,
		SSOCodesIssued,
		SSORedemptions,
		SessionTeardowns,
		LoginThrottled,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
