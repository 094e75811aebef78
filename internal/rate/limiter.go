// Package rate implementa el throttle de intentos de login: ventana fija
// sobre el cache compartido, así el límite vale para todas las réplicas
// cuando el backend es Redis.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Effham/wellvois/internal/cache"
)

// Result es el veredicto de un intento.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter decide si un intento identificado por key puede pasar.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// FixedWindow cuenta hits por key en ventanas alineadas al reloj.
// El contador vive en el cache con TTL igual a la ventana, fijado solo
// en el primer hit.
type FixedWindow struct {
	store  cache.Client
	prefix string
	max    int64
	window time.Duration
}

// NewFixedWindow crea el limiter. max <= 0 deshabilita el límite.
func NewFixedWindow(store cache.Client, prefix string, max int, window time.Duration) *FixedWindow {
	if prefix == "" {
		prefix = "rl"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{store: store, prefix: prefix, max: int64(max), window: window}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	if l.max <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	now := time.Now().UTC()
	winStart := now.Truncate(l.window)
	k := fmt.Sprintf("%s:%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	hits, err := l.store.Incr(ctx, k, l.window)
	if err != nil {
		// Fail-open: un cache caído no debe dejar a nadie sin login.
		return Result{Allowed: true, Remaining: -1}, err
	}

	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   maxInt64(l.max-hits, 0),
		CurrentHits: hits,
	}
	if !res.Allowed {
		res.RetryAfter = winStart.Add(l.window).Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
