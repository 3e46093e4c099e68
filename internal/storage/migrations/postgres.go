package migrations

import (
	"context"
	"fmt"
	"strings"

	"tradelab/internal/storage/postgres"
)

// RunPostgresMigrations applies every embedded Postgres migration.
// Files may hold several statements; pgx executes them through the
// simple protocol when no arguments are bound.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := readSQLFiles(postgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if strings.TrimSpace(f.body) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, f.body); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
