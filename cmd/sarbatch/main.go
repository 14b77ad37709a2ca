package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/config"
	"github.com/target/sarbatch/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(&cfg, logger)

	// Credits render as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	logStartupInfo(ctx, logger, &cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.OpenInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(context.Background(), "close infrastructure failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:        &cfg,
		Stores:        infra.Stores,
		Catalog:       infra.Catalog,
		Observability: infra.Observability,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	server, serveErr, err := bootstrap.StartHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutdown signal received")
	case runErr = <-serveErr:
	}

	shutdownErr := bootstrap.ShutdownHTTPServer(bootstrap.ShutdownConfig{
		Context: context.WithoutCancel(ctx),
		Server:  server,
		Timeout: cfg.HTTP.ShutdownTimeout,
		Logger:  logger,
	})
	return errors.Join(runErr, shutdownErr)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	attrs := []any{
		"store", string(cfg.Store.Backend),
		"http_addr", cfg.HTTP.Addr,
		"catalog_url", cfg.Catalog.URL,
		"redis_cache", cfg.Redis.Enabled,
		"default_credits", cfg.Ledger.DefaultCreditsPerUser.String(),
	}
	if cfg.Store.Backend == config.StorePostgres {
		attrs = append(attrs,
			"db_host", cfg.Postgres.Host,
			"db_port", cfg.Postgres.Port,
			"db_name", cfg.Postgres.Name,
		)
	}
	logger.InfoContext(ctx, "starting sarbatch service", attrs...)
}
