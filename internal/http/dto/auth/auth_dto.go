// Package auth contiene los DTOs del flujo de login central.
package auth

// LoginRequest es el request de POST /login/{intent}.
// Intent puede venir por path, query o sesión; el campo del body es el de
// menor precedencia y normalmente viaja vacío.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Intent   string `json:"intent,omitempty"`
}

// SecondFactorRequest es el request de POST /login/2fa.
type SecondFactorRequest struct {
	Code string `json:"code"`
}

// LoginResponse indica al cliente a dónde continuar.
type LoginResponse struct {
	RedirectTo string `json:"redirect_to"`

	// SecondFactorRequired marca el desvío a 2FA; RedirectTo apunta al
	// challenge en ese caso.
	SecondFactorRequired bool `json:"second_factor_required,omitempty"`
}
