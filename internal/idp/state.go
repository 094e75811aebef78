package idp

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// statePrefix marca la forma tenant-embedded del state. Un state plano es
// el token opaco crudo; la forma embebida es distinguible por el prefijo,
// nunca por heurística de contenido.
const statePrefix = "t1."

// stateEnvelope es la forma estructurada del state cuando el flujo se
// origina desde un contexto de tenant. El provider redirige siempre al
// callback central fijo; el tenant viaja dentro del state.
type stateEnvelope struct {
	State    string `json:"s"`
	TenantID string `json:"t"`
}

// encodeState arma el valor de state a mandar al provider.
// Sin tenant: el token crudo. Con tenant: prefijo + base64url(JSON).
func encodeState(raw, tenantID string) string {
	if tenantID == "" {
		return raw
	}
	b, _ := json.Marshal(stateEnvelope{State: raw, TenantID: tenantID})
	return statePrefix + base64.RawURLEncoding.EncodeToString(b)
}

// decodeState separa la forma recibida en (state crudo, tenant id).
// Acepta ambas formas; una forma embebida corrupta retorna ok=false.
func decodeState(value string) (raw, tenantID string, ok bool) {
	if !strings.HasPrefix(value, statePrefix) {
		return value, "", value != ""
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, statePrefix))
	if err != nil {
		return "", "", false
	}
	var env stateEnvelope
	if err := json.Unmarshal(b, &env); err != nil || env.State == "" {
		return "", "", false
	}
	return env.State, env.TenantID, true
}

// stateKey arma la key de storage. El composite incluye el tenant cuando
// está presente para que un state de tenant no pueda canjearse como plano.
func stateKey(raw, tenantID string) string {
	if tenantID == "" {
		return "oidc:state:" + raw
	}
	return "oidc:state:" + tenantID + ":" + raw
}
