package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/data/pgxutil"
	"github.com/target/sarbatch/internal/domain/model"
	apperrors "github.com/target/sarbatch/internal/errors"
)

// txAttempts bounds reruns of read-modify-write transactions that Postgres aborts.
const txAttempts = 3

// RepoConfig holds configuration options shared by the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for admitted jobs. It also implements
// core.BatchCommitter so admission can debit and insert in one transaction.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var (
	_ core.JobRepository  = (*JobRepo)(nil)
	_ core.BatchCommitter = (*JobRepo)(nil)
)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  job_id::text AS job_id,
  user_id,
  job_type,
  job_parameters,
  name,
  status_code,
  execution_started,
  request_time,
  credit_cost,
  priority,
  subscription_id,
  updated_at
`

const insertJobSQL = `
  INSERT INTO jobs (
    job_id, user_id, job_type, job_parameters, name, status_code,
    execution_started, request_time, credit_cost, priority, subscription_id, updated_at
  ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// CreateBatch inserts every job in a single transaction.
func (r *JobRepo) CreateBatch(ctx context.Context, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			return r.insertJobs(ctx, tx, jobs)
		},
	})
}

// CommitBatch debits the user and inserts the jobs in one transaction. When the debit
// guard fails nothing is written and model.ErrDatabaseCondition is returned.
func (r *JobRepo) CommitBatch(ctx context.Context, params core.CommitBatchParams) error {
	if params.Debit && params.Amount.IsNegative() {
		return model.ErrNegativeAmount
	}
	return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Attempts: txAttempts,
		Fn:       func(tx pgx.Tx) error {
			if params.Debit {
				if err := debitCredits(ctx, tx, debitParams{
					UserID: params.UserID,
					Amount: params.Amount,
					Now:    r.timeProvider.Now().UTC(),
				}); err != nil {
					return err
				}
			}
			return r.insertJobs(ctx, tx, params.Jobs)
		},
	})
}

func (r *JobRepo) insertJobs(ctx context.Context, tx pgx.Tx, jobs []*model.Job) error {
	now := r.timeProvider.Now().UTC()
	batch := &pgx.Batch{}
	for _, job := range jobs {
		id, err := uuid.Parse(job.JobID)
		if err != nil {
			return fmt.Errorf("job id %q: %w", job.JobID, err)
		}
		params := job.JobParameters
		if params == nil {
			params = map[string]any{}
		}
		batch.Queue(insertJobSQL,
			id,
			job.UserID,
			string(job.JobType),
			params,
			job.Name,
			string(job.StatusCode),
			job.ExecutionStarted,
			job.RequestTime.UTC(),
			job.CreditCost,
			job.Priority,
			job.SubscriptionID,
			now,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range jobs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert job %s: %w", jobs[i].JobID, apperrors.MapDBError(err))
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert jobs: %w", apperrors.MapDBError(err))
	}
	r.logger.DebugContext(ctx, "inserted jobs", "count", len(jobs))
	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, jobID string) (*model.Job, error) {
	id, ok := parseJobID(jobID)
	if !ok {
		return nil, model.ErrJobNotFound
	}

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, id)
		if err != nil {
			return err
		}
		job, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// Update applies a partial update under a row lock so concurrent status changes are
// checked against the latest stored state.
func (r *JobRepo) Update(ctx context.Context, jobID string, req model.UpdateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id, ok := parseJobID(jobID)
	if !ok {
		return nil, model.ErrJobNotFound
	}

	var updated *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Attempts: txAttempts,
		Fn:       func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 FOR UPDATE`, id)
			if err != nil {
				return err
			}
			current, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
			if err != nil {
				return err
			}
			if err = checkTransition(current.StatusCode, req.StatusCode); err != nil {
				return err
			}

			next := req.Apply(*current)
			rows, err = tx.Query(ctx, `
				UPDATE jobs
				SET status_code = $2, execution_started = $3, priority = $4, name = $5, updated_at = $6
				WHERE job_id = $1
				RETURNING `+jobColumns,
				id, string(next.StatusCode), next.ExecutionStarted, next.Priority, next.Name,
				r.timeProvider.Now().UTC(),
			)
			if err != nil {
				return err
			}
			updated, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
			return err
		},
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, model.ErrJobNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("update job: %w", apperrors.MapDBError(err))
	}
	return updated, nil
}

// checkTransition rejects status changes the job lifecycle does not allow. Re-asserting the
// current status is accepted.
func checkTransition(current model.JobStatus, next *model.JobStatus) error {
	if next == nil || *next == current || current.CanTransitionTo(*next) {
		return nil
	}
	return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, current, *next)
}

func parseJobID(jobID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(jobID)
	return id, err == nil
}
