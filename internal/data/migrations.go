package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/sarbatch/internal/migrate"
)

// RunMigrations applies the embedded schema and logs the versions it applied.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	applied, err := migrate.Run(ctx, db, logger)
	if err != nil {
		return err
	}
	if logger != nil && len(applied) > 0 {
		logger.InfoContext(ctx, "database schema updated", "versions", applied)
	}
	return nil
}
