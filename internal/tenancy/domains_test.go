package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Effham/wellvois/internal/domain/repository"
)

type stubTenants struct {
	byDomain map[string]*repository.Tenant
	calls    int
}

func (s *stubTenants) GetByID(context.Context, string) (*repository.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (s *stubTenants) GetByDomain(_ context.Context, domain string) (*repository.Tenant, error) {
	s.calls++
	if t, ok := s.byDomain[domain]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Clinic.Example.COM":      "clinic.example.com",
		"clinic.example.com:8443": "clinic.example.com",
		"clinic.example.com.":     "clinic.example.com",
		"  clinic.example.com ":   "clinic.example.com",
		"":                        "",
	}
	for in, want := range cases {
		if got := NormalizeHost(in); got != want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve_NormalizesAndCaches(t *testing.T) {
	store := &stubTenants{byDomain: map[string]*repository.Tenant{
		"clinic.example.com": {ID: "t1", Domains: []string{"clinic.example.com"}},
	}}
	r := NewDomainResolver(store, time.Minute)

	got, err := r.Resolve(context.Background(), "Clinic.Example.COM:443")
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("tenant = %s", got.ID)
	}

	// Segunda resolución del mismo host: sirve del cache, sin hit al store.
	if _, err := r.Resolve(context.Background(), "clinic.example.com"); err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
}

func TestResolve_UnknownDomain(t *testing.T) {
	r := NewDomainResolver(&stubTenants{byDomain: map[string]*repository.Tenant{}}, time.Minute)
	_, err := r.Resolve(context.Background(), "nadie.example.com")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResolve_EmptyHost(t *testing.T) {
	r := NewDomainResolver(&stubTenants{}, time.Minute)
	if _, err := r.Resolve(context.Background(), "   "); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
