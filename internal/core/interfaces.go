package core

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	// CreateBatch persists every job or none of them.
	CreateBatch(ctx context.Context, jobs []*model.Job) error
	GetByID(ctx context.Context, jobID string) (*model.Job, error)
	// List returns one page of jobs, newest first.
	List(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error)
	// ListPending returns unclaimed PENDING jobs ordered by priority, highest first.
	ListPending(ctx context.Context, limit int) ([]*model.Job, error)
	// Update applies a partial update and returns the stored job.
	Update(ctx context.Context, jobID string, req model.UpdateJobRequest) (*model.Job, error)
}

// UserRepository defines the interface for user ledger records.
//
// The conditional operations return model.ErrDatabaseCondition when their guard does not
// hold, leaving the record untouched.
type UserRepository interface {
	// Get returns model.ErrUserNotFound when the user has no record.
	Get(ctx context.Context, userID string) (*model.User, error)
	// CreateIfNotExists inserts a NOT_STARTED record only if none exists.
	CreateIfNotExists(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	// ResetCredits sets remaining credits and stamps the month only if the stored month
	// differs from params.Month.
	ResetCredits(ctx context.Context, params model.ResetCreditsParams) (*model.User, error)
	// DecrementCredits subtracts amount only if remaining credits are at least amount.
	DecrementCredits(ctx context.Context, userID string, amount decimal.Decimal) error
	Update(ctx context.Context, userID string, req model.UpdateUserRequest) (*model.User, error)
}

// BatchCommitter is implemented by stores that can debit a user and insert a batch of jobs
// in a single transaction. Admission prefers it over a separate debit and CreateBatch.
type BatchCommitter interface {
	// CommitBatch debits amount from userID (skipped when debit is false) and inserts jobs.
	// A failed debit guard returns model.ErrDatabaseCondition and nothing is written.
	CommitBatch(ctx context.Context, params CommitBatchParams) error
}

// CommitBatchParams groups parameters for BatchCommitter.CommitBatch.
type CommitBatchParams struct {
	UserID string
	Amount decimal.Decimal
	Debit  bool
	Jobs   []*model.Job
}

// CatalogClient resolves scene names to their catalog metadata.
type CatalogClient interface {
	// Lookup returns metadata for the names the catalog knows. Unknown names are omitted.
	// Transport and server failures wrap model.ErrCatalogUnavailable.
	Lookup(ctx context.Context, names []string) ([]model.Granule, error)
}
