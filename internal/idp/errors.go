package idp

import "errors"

var (
	// ErrInvalidState indica un state ausente, ya usado o que no matchea.
	ErrInvalidState = errors.New("idp: invalid state")

	// ErrExchangeFailed indica que el token endpoint rechazó el code.
	ErrExchangeFailed = errors.New("idp: code exchange failed")

	// ErrMalformedToken indica un ID token que no se pudo decodificar.
	ErrMalformedToken = errors.New("idp: malformed token")

	// ErrProviderError indica una falla HTTP del provider (incluye timeout).
	ErrProviderError = errors.New("idp: provider error")

	// ErrUnknownAccount indica que ninguna identidad matchea los claims.
	// Esta superficie de login NUNCA crea cuentas implícitamente.
	ErrUnknownAccount = errors.New("idp: unknown account")

	// ErrTenantBoundAccount indica una cuenta con membresías de tenant
	// intentando entrar por la superficie central-only.
	ErrTenantBoundAccount = errors.New("idp: account belongs to a tenant")
)
