package tenancy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Effham/wellvois/internal/domain/repository"
	"golang.org/x/sync/singleflight"
)

// DomainResolver resuelve tenants por host con un cache corto en memoria.
// singleflight colapsa lookups concurrentes del mismo dominio.
type DomainResolver struct {
	tenants repository.TenantRepository
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]domainEntry
	sf      singleflight.Group
}

type domainEntry struct {
	tenant   *repository.Tenant
	cachedAt time.Time
}

// NewDomainResolver crea el resolver. ttl <= 0 usa 30s.
func NewDomainResolver(tenants repository.TenantRepository, ttl time.Duration) *DomainResolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DomainResolver{
		tenants: tenants,
		ttl:     ttl,
		entries: map[string]domainEntry{},
	}
}

// Resolve busca el tenant dueño del host. Normaliza a lowercase y descarta
// el puerto. Retorna repository.ErrNotFound si ningún tenant lo tiene.
func (r *DomainResolver) Resolve(ctx context.Context, host string) (*repository.Tenant, error) {
	domain := NormalizeHost(host)
	if domain == "" {
		return nil, repository.ErrNotFound
	}

	r.mu.RLock()
	e, ok := r.entries[domain]
	fresh := ok && time.Since(e.cachedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return e.tenant, nil
	}

	v, err, _ := r.sf.Do(domain, func() (any, error) {
		t, err := r.tenants.GetByDomain(ctx, domain)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[domain] = domainEntry{tenant: t, cachedAt: time.Now()}
		r.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*repository.Tenant), nil
}

// NormalizeHost baja a lowercase y quita el puerto si lo hay.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h[i+1:], "]") {
		h = h[:i]
	}
	return strings.TrimSuffix(h, ".")
}
