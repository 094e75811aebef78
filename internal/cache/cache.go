// Package cache provee el key/value store con TTL que respalda códigos SSO,
// estados OIDC y sesiones centrales.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// Todas las entradas son single-writer y de vida corta. La operación Take
// es la primitiva atómica delete-and-return: dos redenciones concurrentes
// del mismo código ven exactamente un ganador.
package cache

import (
	"context"
	"time"
)

// Client define las operaciones del store.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key. Una vez que Delete retorna, cualquier Get
	// posterior (incluso concurrente) retorna ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Take obtiene y elimina una key en una sola operación atómica.
	// A lo sumo un caller concurrente recibe el valor; el resto ve
	// ErrNotFound.
	Take(ctx context.Context, key string) (string, error)

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	// Incr incrementa un contador y retorna el valor nuevo. En el primer
	// hit crea la key con el TTL dado; los siguientes no lo renuevan
	// (ventana fija).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente.
type Config struct {
	Driver   string // "memory" | "redis"
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string // Prefijo para todas las keys
}

// Errores de cache.
var (
	ErrNotFound = errNotFound{}
)

type errNotFound struct{}

func (e errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return NewMemory(cfg.Prefix), nil
	}
}
