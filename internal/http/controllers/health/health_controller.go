// Package health expone los endpoints de liveness/readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	dto "github.com/Effham/wellvois/internal/http/dto/health"
)

// Pinger es cualquier dependencia que sabe reportar su salud.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller responde /healthz y /readyz.
type Controller struct {
	version    string
	components map[string]Pinger
}

// NewController crea el controller. components mapea nombre -> dependencia
// (ej: "postgres", "token_store").
func NewController(version string, components map[string]Pinger) *Controller {
	return &Controller{version: version, components: components}
}

// Live maneja GET /healthz: el proceso responde.
func (c *Controller) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready maneja GET /readyz: verifica cada dependencia con timeout corto.
func (c *Controller) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{
		Status:     "ready",
		Components: make(map[string]dto.HealthStatus, len(c.components)),
		Version:    c.version,
		Timestamp:  time.Now().UTC(),
	}

	status := http.StatusOK
	for name, p := range c.components {
		if err := p.Ping(ctx); err != nil {
			resp.Components[name] = dto.HealthStatus{Status: "error", Message: err.Error()}
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = dto.HealthStatus{Status: "ok"}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
