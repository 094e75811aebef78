package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Effham/wellvois/internal/config"
	"github.com/Effham/wellvois/internal/security/password"
	"github.com/Effham/wellvois/internal/security/totp"
)

// newSeedCmd crea datos de desarrollo: un tenant con dominio, una identidad
// admin con membresía y rol, y opcionalmente 2FA provisionado.
//
// Overrides por env: SEED_EMAIL, SEED_PASSWORD, SEED_TENANT_NAME,
// SEED_TENANT_DOMAIN, SEED_2FA=1.
func newSeedCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Siembra datos de desarrollo en el store central",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "ruta al YAML de configuración")
	return cmd
}

func seedEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func runSeed(ctx context.Context, cfgPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.IsProd() {
		return fmt.Errorf("seed no corre contra entornos prod")
	}

	pool, err := pgxpool.New(ctx, cfg.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	email := seedEnv("SEED_EMAIL", "admin@wellvois.local")
	pass := seedEnv("SEED_PASSWORD", "admin1234")
	tenantName := seedEnv("SEED_TENANT_NAME", "demo")
	tenantDomain := seedEnv("SEED_TENANT_DOMAIN", "demo.wellvois.local")

	hash, err := password.Hash(password.Default, pass)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	identityID := uuid.NewString()
	tenantID := uuid.NewString()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Upserts por clave natural: el seed es re-ejecutable.
	if err := tx.QueryRow(ctx, `
		INSERT INTO identities (id, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (lower(email)) DO UPDATE SET password_hash = excluded.password_hash
		RETURNING id`,
		identityID, email, hash,
	).Scan(&identityID); err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO tenants (id, name, display_name)
		VALUES ($1, $2, initcap($2))
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id`,
		tenantID, tenantName,
	).Scan(&tenantID); err != nil {
		return fmt.Errorf("tenant: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO tenant_domains (tenant_id, domain, priority)
		VALUES ($1, $2, 0)
		ON CONFLICT DO NOTHING`,
		tenantID, tenantDomain,
	); err != nil {
		return fmt.Errorf("domain: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO memberships (identity_id, tenant_id, invitation_status)
		VALUES ($1, $2, 'accepted')
		ON CONFLICT DO NOTHING`,
		identityID, tenantID,
	); err != nil {
		return fmt.Errorf("membership: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO role_grants (identity_id, tenant_id, role)
		VALUES ($1, $2, 'admin')
		ON CONFLICT DO NOTHING`,
		identityID, tenantID,
	); err != nil {
		return fmt.Errorf("role: %w", err)
	}

	if seedEnv("SEED_2FA", "") == "1" {
		_, secretB32, err := totp.GenerateSecret()
		if err != nil {
			return fmt.Errorf("totp: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE identities SET second_factor_enabled = true, totp_secret = $2
			WHERE id = $1`,
			identityID, secretB32,
		); err != nil {
			return fmt.Errorf("totp enable: %w", err)
		}
		fmt.Println("otpauth:", totp.OTPAuthURL("Wellvois", email, secretB32))
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	fmt.Printf("seed ok: %s / %s en tenant %s (%s)\n", email, pass, tenantName, tenantDomain)
	return nil
}
