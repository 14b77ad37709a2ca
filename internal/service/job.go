package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Logger *slog.Logger       // Optional: structured logger
}

// JobService serves reads of admitted jobs and the status updates the execution layer makes.
type JobService struct {
	repo   core.JobRepository
	logger *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}
	return &JobService{repo: opts.Repo, logger: logger}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Get returns a job by id.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns one page of jobs matching opts, newest first.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error) {
	if opts.Start != nil && opts.End != nil && opts.Start.After(*opts.End) {
		return nil, model.ErrInvalidTimeRange
	}
	page, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return page, nil
}

// ListPending returns the jobs waiting to be claimed, highest priority first.
func (s *JobService) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	jobs, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return jobs, nil
}

// Update applies a partial update. Status changes must follow the job lifecycle.
func (s *JobService) Update(ctx context.Context, jobID string, req model.UpdateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	job, err := s.repo.Update(ctx, jobID, req)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job updated",
			"id", job.JobID,
			"status", job.StatusCode,
			"execution_started", job.ExecutionStarted,
		)
	}
	return job, nil
}
