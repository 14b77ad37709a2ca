package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/config"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/jobspec"
	"github.com/target/sarbatch/internal/domain/validation"
	"github.com/target/sarbatch/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Ledger        *service.LedgerService
	Admission     *service.AdmissionService
	Jobs          *service.JobService
	Catalogue     *jobspec.Catalogue
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config  *config.AppConfig
	Stores  Stores
	Catalog core.CatalogClient
	// Observability is optional; the zero value disables metrics and incident alerts.
	Observability ObservabilityContainer
	Logger        *slog.Logger
}

// LoadCatalogue reads the job-type catalogue from JOB_SPECS_PATH or falls back to the
// embedded default.
func LoadCatalogue(cfg config.ValidationConfig) (*jobspec.Catalogue, error) {
	if cfg.JobSpecsPath == "" {
		return jobspec.Default()
	}
	return jobspec.Load(cfg.JobSpecsPath)
}

// NewValidationRegistry binds the built-in validators to the configured reference data.
// Coverage files are parsed eagerly so a bad path fails at startup.
func NewValidationRegistry(cfg config.ValidationConfig) (*validation.Registry, error) {
	operaEnd, err := cfg.OperaRTCEnd()
	if err != nil {
		return nil, err
	}

	dem := validation.CoverageFromPath(cfg.DEMCoveragePath, validation.DefaultDEMCoverage)
	static := validation.CoverageFromPath(cfg.StaticCoveragePath, validation.DefaultStaticCoverage)
	for name, cov := range map[string]*validation.Coverage{"dem": dem, "static": static} {
		if err = cov.Load(); err != nil {
			return nil, fmt.Errorf("load %s coverage: %w", name, err)
		}
	}

	return validation.NewRegistry(validation.Environment{
		DEMCoverage:    dem,
		StaticCoverage: static,
		CoverageOptions: &validation.CoverageOptions{
			Threshold: cfg.CoverageThreshold,
			Buffer:    cfg.CoverageBuffer,
		},
		OperaRTCEnd:   operaEnd,
		PairWindow:    cfg.PairWindow,
		MaxBoundsArea: cfg.MaxBoundsArea,
	}), nil
}

// NewServices wires the ledger, admission and job services over the selected stores.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps and config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalogue, err := LoadCatalogue(cfg.Validation)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("load job specs: %w", err)
	}
	registry, err := NewValidationRegistry(cfg.Validation)
	if err != nil {
		return ServiceContainer{}, err
	}

	ledger, err := service.NewLedgerService(service.LedgerServiceOptions{
		Repo: deps.Stores.Users,
		Config: service.LedgerConfig{
			DefaultCredits: decimal.NewNullDecimal(cfg.Ledger.DefaultCreditsPerUser),
			ResetMonthly:   cfg.Ledger.ResetCreditsMonthly,
			MaxAttempts:    cfg.Ledger.MaxAttempts,
		},
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	svcOpts := service.AdmissionServiceOptions{
		Ledger:    ledger,
		Jobs:      deps.Stores.Jobs,
		Catalog:   deps.Catalog,
		Catalogue: catalogue,
		Registry:  registry,
		Config:    service.AdmissionConfig{MaxJobsPerBatch: cfg.Admission.MaxJobsPerBatch},
		Metrics:   deps.Observability.sink(),
		Logger:    logger,
	}
	if deps.Observability.Incidents.Enabled() {
		svcOpts.Incidents = deps.Observability.Incidents
	}
	admission, err := service.NewAdmissionService(svcOpts)
	if err != nil {
		return ServiceContainer{}, err
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{Repo: deps.Stores.Jobs, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}

	logger.Info("services initialised",
		"store", string(cfg.Store.Backend),
		"job_types", len(catalogue.JobTypes()),
		"reset_credits_monthly", cfg.Ledger.ResetCreditsMonthly,
	)

	return ServiceContainer{
		Ledger:        ledger,
		Admission:     admission,
		Jobs:          jobs,
		Catalogue:     catalogue,
		Observability: deps.Observability,
	}, nil
}

// Infrastructure holds the long-lived connections a process opens at startup.
type Infrastructure struct {
	Stores        Stores
	Catalog       core.CatalogClient
	Observability ObservabilityContainer
	closers       []func() error
}

// Close releases every connection, joining their errors.
func (i *Infrastructure) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenInfrastructure connects the store, optional Redis cache, catalog client and
// observability adapters.
func OpenInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	infra.Stores = stores
	infra.closers = append(infra.closers, stores.Close)

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.closers = append(infra.closers, redisClient.Close)
	}

	infra.Catalog, err = NewCatalogClient(cfg.Catalog, redisClient, logger)
	if err != nil {
		return nil, errors.Join(err, infra.Close())
	}

	infra.Observability = BuildObservability(logger, cfg.Observability)
	infra.closers = append(infra.closers, infra.Observability.Close)
	return infra, nil
}
