package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/cost"
	"github.com/target/sarbatch/internal/domain/jobspec"
	"github.com/target/sarbatch/internal/domain/model"
	"github.com/target/sarbatch/internal/domain/priority"
	"github.com/target/sarbatch/internal/domain/validation"
	obserrors "github.com/target/sarbatch/internal/observability/errors"
	"github.com/target/sarbatch/internal/observability/metrics"
	"github.com/target/sarbatch/internal/observability/notify"
	"github.com/target/sarbatch/internal/observability/statsd"
)

// DefaultMaxJobsPerBatch caps the number of jobs one admission request may carry.
const DefaultMaxJobsPerBatch = 200

// AdmissionConfig holds admission limits.
type AdmissionConfig struct {
	MaxJobsPerBatch int
	// Now defaults to time.Now.
	Now func() time.Time
}

// IncidentNotifier is told when credits were debited but the jobs could not be stored.
type IncidentNotifier interface {
	NotifyIncident(ctx context.Context, payload notify.IncidentPayload)
}

// AdmissionServiceOptions groups dependencies for AdmissionService.
type AdmissionServiceOptions struct {
	Ledger    *LedgerService       // Required: credit ledger
	Jobs      core.JobRepository   // Required: job persistence
	Catalog   core.CatalogClient   // Required: granule catalog
	Catalogue *jobspec.Catalogue   // Required: job types, defaults and cost rules
	Registry  *validation.Registry // Optional: validator implementations; built-ins when nil
	Config    AdmissionConfig      // Optional: zero values pick the defaults
	Metrics   statsd.Sink          // Optional: admission metrics
	Incidents IncidentNotifier     // Optional: operator alerts for ledger inconsistencies
	Logger    *slog.Logger         // Optional: structured logger
}

// AdmissionService turns a batch of job requests into priced, prioritized PENDING jobs and
// charges the submitting user for them. A batch is admitted whole or not at all.
type AdmissionService struct {
	ledger    *LedgerService
	jobs      core.JobRepository
	catalog   core.CatalogClient
	catalogue *jobspec.Catalogue
	costs     cost.Table
	chains    map[model.JobType]validation.Chain
	cfg       AdmissionConfig
	metrics   statsd.Sink
	incidents IncidentNotifier
	logger    *slog.Logger
}

// NewAdmissionService constructs an AdmissionService. It resolves every job type's validator
// chain up front so a catalogue naming an unregistered validator fails at startup.
func NewAdmissionService(opts AdmissionServiceOptions) (*AdmissionService, error) {
	switch {
	case opts.Ledger == nil:
		return nil, errors.New("LedgerService is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Catalog == nil:
		return nil, errors.New("CatalogClient is required")
	case opts.Catalogue == nil:
		return nil, errors.New("Catalogue is required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = validation.NewRegistry(validation.Environment{})
	}
	chains, err := opts.Catalogue.Chains(registry)
	if err != nil {
		return nil, fmt.Errorf("resolve validator chains: %w", err)
	}

	cfg := opts.Config
	if cfg.MaxJobsPerBatch <= 0 {
		cfg.MaxJobsPerBatch = DefaultMaxJobsPerBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AdmissionService{
		ledger:    opts.Ledger,
		jobs:      opts.Jobs,
		catalog:   opts.Catalog,
		catalogue: opts.Catalogue,
		costs:     opts.Catalogue.Costs(),
		chains:    chains,
		cfg:       cfg,
		metrics:   opts.Metrics,
		incidents: opts.Incidents,
		logger:    logger.With("component", "admission_service"),
	}, nil
}

// MustNewAdmissionService constructs an AdmissionService and panics on error.
func MustNewAdmissionService(opts AdmissionServiceOptions) *AdmissionService {
	svc, err := NewAdmissionService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create AdmissionService: %v", err))
	}
	return svc
}

// AdmitBatch validates, prices and prioritizes every job in req, then debits the user and
// persists the jobs. With req.ValidateOnly the prepared jobs are returned without any write.
//
// Failures leave no jobs behind and the balance untouched, apart from the lazy creation of
// the user's ledger record.
func (s *AdmissionService) AdmitBatch(ctx context.Context, req model.BatchRequest) ([]*model.Job, error) {
	start := time.Now()
	jobs, err := s.admit(ctx, req)

	m := metrics.AdmissionMetric{Result: metrics.ResultSuccess, Duration: time.Since(start), Err: err}
	switch {
	case err != nil:
		m.Result = metrics.ResultError
	case req.ValidateOnly:
		m.Result = metrics.ResultDryRun
	}
	if err == nil {
		m.Jobs = len(jobs)
		m.Credits = model.TotalCost(jobs).InexactFloat64()
	}
	metrics.EmitAdmission(s.metrics, m)
	return jobs, err
}

func (s *AdmissionService) admit(ctx context.Context, req model.BatchRequest) ([]*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Jobs) > s.cfg.MaxJobsPerBatch {
		return nil, model.NewValidationErrorf(
			"Batch contains %d jobs; at most %d may be submitted at once", len(req.Jobs), s.cfg.MaxJobsPerBatch,
		)
	}

	user, err := s.ledger.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err = CheckApplicationStatus(user); err != nil {
		return nil, err
	}

	params, err := s.prepare(req.Jobs)
	if err != nil {
		return nil, err
	}
	if err = s.validate(ctx, req.Jobs, params); err != nil {
		return nil, err
	}

	jobs, err := s.build(user, req, params)
	if err != nil {
		return nil, err
	}

	total := model.TotalCost(jobs)
	if !user.HasUnlimitedCredits() && total.GreaterThan(user.RemainingCredits.Decimal) {
		return nil, &model.InsufficientCreditsError{Total: total, Remaining: user.RemainingCredits.Decimal}
	}

	if req.ValidateOnly {
		s.logger.DebugContext(ctx, "validated batch without admitting",
			"user_id", user.UserID,
			"jobs", len(jobs),
			"credits", total.String(),
		)
		return jobs, nil
	}

	if err = s.commit(ctx, user, total, jobs); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "admitted batch",
		"user_id", user.UserID,
		"jobs", len(jobs),
		"credits", total.String(),
	)
	return jobs, nil
}

// prepare checks every request against its job type's schema and merges defaults.
func (s *AdmissionService) prepare(reqs []model.JobRequest) ([]map[string]any, error) {
	out := make([]map[string]any, len(reqs))
	for i, r := range reqs {
		merged, err := s.catalogue.Prepare(r)
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

// validate looks up every referenced scene in one catalog call, checks they exist, and runs
// each job's validator chain. The first failure aborts the batch.
func (s *AdmissionService) validate(ctx context.Context, reqs []model.JobRequest, params []map[string]any) error {
	names := validation.UnionSceneNames(params...)

	var granules []model.Granule
	if lookup := validation.CatalogNames(names); len(lookup) > 0 {
		start := time.Now()
		var err error
		granules, err = s.catalog.Lookup(ctx, lookup)
		metrics.EmitCatalogLookup(s.metrics, metrics.CatalogMetric{
			Requested: len(lookup),
			Found:     len(granules),
			Duration:  time.Since(start),
			Err:       err,
		})
		if err != nil {
			if !errors.Is(err, model.ErrCatalogUnavailable) {
				err = fmt.Errorf("%w: %w", model.ErrCatalogUnavailable, err)
			}
			return err
		}
	}

	index := model.IndexGranules(granules)
	if err := validation.CheckExistence(names, index); err != nil {
		return err
	}

	for i, r := range reqs {
		job := validation.Job{
			JobType:    r.JobType,
			Parameters: params[i],
			Granules:   index.Subset(validation.SceneNames(params[i])),
		}
		if err := s.chains[r.JobType].Run(ctx, job); err != nil {
			s.logger.DebugContext(ctx, "job failed validation", "index", i, "job_type", r.JobType, "error", err)
			return err
		}
	}
	return nil
}

// build prices each job and stamps ids, priority and the batch's shared request time.
func (s *AdmissionService) build(user *model.User, req model.BatchRequest, params []map[string]any) ([]*model.Job, error) {
	costs := make([]decimal.Decimal, len(req.Jobs))
	for i, r := range req.Jobs {
		c, err := s.costs.Compute(r.JobType, params[i])
		if err != nil {
			return nil, err
		}
		costs[i] = c
	}
	priorities := priority.AssignBatch(user.RemainingCredits, user.PriorityOverride, costs)
	requestTime := s.cfg.Now().UTC().Truncate(time.Second)

	jobs := make([]*model.Job, len(req.Jobs))
	for i, r := range req.Jobs {
		jobs[i] = &model.Job{
			JobID:          uuid.NewString(),
			UserID:         user.UserID,
			JobType:        r.JobType,
			JobParameters:  params[i],
			Name:           r.Name,
			StatusCode:     model.JobStatusPending,
			RequestTime:    requestTime,
			CreditCost:     costs[i],
			Priority:       priorities[i],
			SubscriptionID: req.SubscriptionID,
		}
	}
	return jobs, nil
}

// commit debits and persists. Stores that implement core.BatchCommitter do both in one
// transaction; otherwise the debit happens first and a failed insert is reported as
// model.ErrInconsistentState.
func (s *AdmissionService) commit(ctx context.Context, user *model.User, total decimal.Decimal, jobs []*model.Job) error {
	debit := !user.HasUnlimitedCredits() && total.IsPositive()

	if committer, ok := s.jobs.(core.BatchCommitter); ok {
		err := committer.CommitBatch(ctx, core.CommitBatchParams{
			UserID: user.UserID,
			Amount: total,
			Debit:  debit,
			Jobs:   jobs,
		})
		if errors.Is(err, model.ErrDatabaseCondition) {
			if err = s.ledger.shortfall(ctx, user.UserID, total); err == nil {
				err = fmt.Errorf("commit batch: %w", model.ErrDatabaseCondition)
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	}

	if debit {
		if err := s.ledger.Decrement(ctx, user.UserID, total); err != nil {
			return err
		}
	}
	if err := s.jobs.CreateBatch(ctx, jobs); err != nil {
		if !debit {
			return fmt.Errorf("persist jobs: %w", err)
		}
		s.logger.ErrorContext(ctx, "credits debited but jobs not persisted",
			"user_id", user.UserID,
			"credits", total.String(),
			"jobs", len(jobs),
			"error", err,
		)
		err = fmt.Errorf("%w: %w", model.ErrInconsistentState, err)
		s.reportIncident(ctx, user.UserID, total, jobs, err)
		return err
	}
	return nil
}

func (s *AdmissionService) reportIncident(ctx context.Context, userID string, total decimal.Decimal, jobs []*model.Job, err error) {
	if s.incidents == nil {
		return
	}
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.JobID
	}
	s.incidents.NotifyIncident(context.WithoutCancel(ctx), notify.IncidentPayload{
		Kind:       notify.KindInconsistentLedger,
		UserID:     userID,
		Amount:     total.String(),
		JobCount:   len(jobs),
		JobIDs:     ids,
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		OccurredAt: s.cfg.Now().UTC(),
	})
}
