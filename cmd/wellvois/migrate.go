package main

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Effham/wellvois/internal/config"
	migrations "github.com/Effham/wellvois/migrations/postgres"
)

// newMigrateCmd arma el subcomando de migraciones sobre los SQL embebidos.
// Acciones: up aplica en orden ascendente, down en orden inverso; un steps
// opcional limita cuántas.
func newMigrateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "migrate [up|down] [steps]",
		Short: "Aplica las migraciones del store central",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			steps := 0
			if len(args) >= 1 {
				action = strings.ToLower(args[0])
			}
			if len(args) >= 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps inválido: %q", args[1])
				}
				steps = n
			}
			return runMigrate(cmd.Context(), cfgPath, action, steps)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "ruta al YAML de configuración")
	return cmd
}

func runMigrate(ctx context.Context, cfgPath, action string, steps int) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	var files []string
	switch action {
	case "up":
		files, err = listSQL("_up.sql")
		if err != nil {
			return err
		}
		sort.Strings(files)
	case "down":
		files, err = listSQL("_down.sql")
		if err != nil {
			return err
		}
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	default:
		return fmt.Errorf("acción desconocida %q: use up | down [steps]", action)
	}

	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}
	if len(files) == 0 {
		fmt.Println("nada que aplicar")
		return nil
	}

	for _, name := range files {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		start := time.Now()
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
		fmt.Printf("OK %s (%s)\n", name, time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}

func listSQL(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
