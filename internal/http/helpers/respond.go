package helpers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// WantsJSON decide si el cliente espera JSON (XHR) o navegación (form).
func WantsJSON(r *http.Request) bool {
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/json")
}

// Redirect responde el "andá para allá" del flujo: JSON {redirect_to} para
// clientes XHR, 303 See Other para navegación clásica.
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	if WantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"redirect_to": location})
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// ClientIP extrae la IP del cliente honrando X-Forwarded-For (primer hop).
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
