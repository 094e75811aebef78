package sso

import (
	"net/url"

	"github.com/Effham/wellvois/internal/domain/repository"
)

// BuildTenantRedirectURL arma la URL de hand-off hacia el dominio primario
// del tenant: https://{dominio}/sso/start?code={opaco}. El code es el único
// query param y el único credential; el tenant debe tratarlo como bearer
// canjeado server-side, nunca mostrarlo ni loguearlo completo.
func (b *Broker) BuildTenantRedirectURL(code string, tenant *repository.Tenant) (string, error) {
	domain := tenant.PrimaryDomain()
	if domain == "" {
		return "", ErrNoTenantDomain
	}

	scheme := "http"
	if b.prod {
		scheme = "https"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     domain,
		Path:     "/sso/start",
		RawQuery: url.Values{"code": {code}}.Encode(),
	}
	return u.String(), nil
}
