// Package pg implementa los repositorios del dominio sobre PostgreSQL.
// Usa pgxpool directamente.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Effham/wellvois/internal/domain/repository"
)

// Store agrupa los repositorios sobre un mismo pool.
type Store struct {
	pool *pgxpool.Pool

	identities  *identityRepo
	tenants     *tenantRepo
	memberships *membershipRepo
	docTokens   *docTokenRepo
}

// Config del pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// New abre el pool y verifica la conexión.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		identities:  &identityRepo{pool: pool},
		tenants:     &tenantRepo{pool: pool},
		memberships: &membershipRepo{pool: pool},
		docTokens:   &docTokenRepo{pool: pool},
	}, nil
}

// Identities retorna el repositorio de identidades.
func (s *Store) Identities() repository.IdentityRepository { return s.identities }

// Tenants retorna el repositorio de tenants.
func (s *Store) Tenants() repository.TenantRepository { return s.tenants }

// Memberships retorna el repositorio de membresías.
func (s *Store) Memberships() repository.MembershipRepository { return s.memberships }

// DocumentTokens retorna el repositorio de tokens de documentos.
func (s *Store) DocumentTokens() repository.DocumentAccessTokenRepository { return s.docTokens }

// Ping verifica la conexión (health checks).
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool.
func (s *Store) Close() { s.pool.Close() }
