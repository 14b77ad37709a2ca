package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/sarbatch/config"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/data"
	"github.com/target/sarbatch/internal/data/memstore"
)

// Stores holds the repositories selected by STORE.
type Stores struct {
	Users core.UserRepository
	Jobs  core.JobRepository
	// DB is nil for the in-memory backend.
	DB *sql.DB
}

// Close releases the database connection, if any.
func (s Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// OpenStores connects the configured backend and, for Postgres, applies migrations when
// RUN_MIGRATIONS_ON_START is set.
func OpenStores(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Store.Backend == config.StoreMemory {
		logger.WarnContext(ctx, "using in-memory store; users and jobs are lost on restart")
		mem, err := memstore.New(memstore.Options{})
		if err != nil {
			return Stores{}, err
		}
		return Stores{Users: mem.Users(), Jobs: mem.Jobs()}, nil
	}

	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return Stores{}, fmt.Errorf("connect db: %w", err)
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err = RunMigrations(ctx, db, logger); err != nil {
			_ = db.Close()
			return Stores{}, err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	repoCfg := data.RepoConfig{Logger: logger}
	return Stores{
		Users: data.NewUserRepo(db, repoCfg),
		Jobs:  data.NewJobRepo(db, repoCfg),
		DB:    db,
	}, nil
}
