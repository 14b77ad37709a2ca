package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
)

// JobStore implements core.JobRepository and core.BatchCommitter.
type JobStore struct {
	store *Store
}

var (
	_ core.JobRepository  = (*JobStore)(nil)
	_ core.BatchCommitter = (*JobStore)(nil)
)

// CreateBatch inserts every job or none of them.
func (s *JobStore) CreateBatch(ctx context.Context, jobs []*model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()
	if err := s.insert(txn, jobs); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// CommitBatch debits the user and inserts the jobs atomically.
func (s *JobStore) CommitBatch(ctx context.Context, params core.CommitBatchParams) error {
	if params.Debit && params.Amount.IsNegative() {
		return model.ErrNegativeAmount
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()
	if params.Debit {
		if err := s.store.debit(txn, params.UserID, params.Amount); err != nil {
			return err
		}
	}
	if err := s.insert(txn, params.Jobs); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *JobStore) insert(txn *memdb.Txn, jobs []*model.Job) error {
	now := s.store.now().UTC()
	for _, j := range jobs {
		if _, err := getUser(txn, j.UserID); err != nil {
			return fmt.Errorf("insert job %s: user %s does not exist", j.JobID, j.UserID)
		}
		existing, err := txn.First(jobsTable, idIndex, j.JobID)
		if err != nil {
			return fmt.Errorf("lookup job: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("insert job %s: job already exists", j.JobID)
		}
		c := cloneJob(j)
		c.RequestTime = c.RequestTime.UTC()
		c.UpdatedAt = now
		if c.JobParameters == nil {
			c.JobParameters = map[string]any{}
		}
		if err = txn.Insert(jobsTable, c); err != nil {
			return fmt.Errorf("insert job %s: %w", j.JobID, err)
		}
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (s *JobStore) GetByID(ctx context.Context, jobID string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.store.db.Txn(false)
	defer txn.Abort()
	j, err := getJob(txn, jobID)
	if err != nil {
		return nil, err
	}
	return cloneJob(j), nil
}

func getJob(txn *memdb.Txn, jobID string) (*model.Job, error) {
	raw, err := txn.First(jobsTable, idIndex, jobID)
	if err != nil {
		return nil, fmt.Errorf("lookup job: %w", err)
	}
	if raw == nil {
		return nil, model.ErrJobNotFound
	}
	return raw.(*model.Job), nil
}

// List returns one page of jobs, newest first.
func (s *JobStore) List(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error) {
	opts.Normalize()
	if opts.Start != nil && opts.End != nil && opts.Start.After(*opts.End) {
		return nil, model.ErrInvalidTimeRange
	}
	var cursor *model.JobCursor
	if opts.Cursor != "" {
		c, err := model.DecodeJobCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		cursor = &c
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := s.store.db.Txn(false)
	defer txn.Abort()

	var (
		it  memdb.ResultIterator
		err error
	)
	if opts.UserID != nil {
		it, err = txn.Get(jobsTable, userIndex, *opts.UserID)
	} else {
		it, err = txn.Get(jobsTable, idIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var matched []*model.Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		j := raw.(*model.Job)
		if matches(j, opts) && (cursor == nil || cursor.Before(j)) {
			matched = append(matched, j)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		ja, jb := matched[a], matched[b]
		if !ja.RequestTime.Equal(jb.RequestTime) {
			return ja.RequestTime.After(jb.RequestTime)
		}
		return ja.JobID > jb.JobID
	})
	if len(matched) > opts.Limit+1 {
		matched = matched[:opts.Limit+1]
	}
	out := make([]*model.Job, len(matched))
	for i, j := range matched {
		out[i] = cloneJob(j)
	}
	return model.PageJobs(out, opts.Limit)
}

func matches(j *model.Job, opts model.JobListOptions) bool {
	switch {
	case opts.StatusCode != nil && j.StatusCode != *opts.StatusCode:
		return false
	case opts.JobType != nil && j.JobType != *opts.JobType:
		return false
	case opts.Name != nil && (j.Name == nil || *j.Name != *opts.Name):
		return false
	case opts.Start != nil && j.RequestTime.Before(*opts.Start):
		return false
	case opts.End != nil && j.RequestTime.After(*opts.End):
		return false
	default:
		return true
	}
}

// ListPending returns unclaimed PENDING jobs, highest priority first.
func (s *JobStore) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = model.DefaultJobListLimit
	}
	if limit > model.MaxJobListLimit {
		limit = model.MaxJobListLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := s.store.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(jobsTable, statusIndex, string(model.JobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}

	var pending []*model.Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if j := raw.(*model.Job); !j.ExecutionStarted {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool {
		ja, jb := pending[a], pending[b]
		if ja.Priority != jb.Priority {
			return ja.Priority > jb.Priority
		}
		if !ja.RequestTime.Equal(jb.RequestTime) {
			return ja.RequestTime.Before(jb.RequestTime)
		}
		return ja.JobID < jb.JobID
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]*model.Job, len(pending))
	for i, j := range pending {
		out[i] = cloneJob(j)
	}
	return out, nil
}

// Update applies a partial update. Status changes follow the job lifecycle.
func (s *JobStore) Update(ctx context.Context, jobID string, req model.UpdateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()

	cur, err := getJob(txn, jobID)
	if err != nil {
		return nil, err
	}
	if next := req.StatusCode; next != nil && *next != cur.StatusCode && !cur.StatusCode.CanTransitionTo(*next) {
		return nil, fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, cur.StatusCode, *next)
	}
	updated := req.Apply(*cloneJob(cur))
	updated.UpdatedAt = s.store.now().UTC()
	if err = txn.Insert(jobsTable, &updated); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	txn.Commit()
	return cloneJob(&updated), nil
}
