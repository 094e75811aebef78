// Package types define tipos de dominio compartidos entre paquetes.
package types

import "strings"

// LoginIntent indica como qué tipo de cuenta el usuario intenta entrar.
// Se fija antes de enviar credenciales y se consume exactamente una vez
// después de autenticar (incluyendo el desvío por 2FA).
type LoginIntent string

const (
	IntentPractitioner LoginIntent = "practitioner"
	IntentPatient      LoginIntent = "patient"
	IntentAdmin        LoginIntent = "admin"
)

// IsValid retorna true si el intent es uno de los tres conocidos.
// Un intent ausente o inválido NUNCA se defaultea en silencio: el caller
// debe redirigir a la selección de intent.
func (i LoginIntent) IsValid() bool {
	switch i {
	case IntentPractitioner, IntentPatient, IntentAdmin:
		return true
	}
	return false
}

// ParseIntent normaliza y valida un intent crudo.
func ParseIntent(raw string) (LoginIntent, bool) {
	i := LoginIntent(strings.ToLower(strings.TrimSpace(raw)))
	return i, i.IsValid()
}
