package data

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/sarbatch/internal/data/pgxutil"
	"github.com/target/sarbatch/internal/domain/model"
	apperrors "github.com/target/sarbatch/internal/errors"
)

type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func newJobFilterQueryBuilder(base string) *jobFilterQueryBuilder {
	return &jobFilterQueryBuilder{query: base, argIdx: 1}
}

func (b *jobFilterQueryBuilder) arg(value any) string {
	b.args = append(b.args, value)
	p := fmt.Sprintf("$%d", b.argIdx)
	b.argIdx++
	return p
}

func (b *jobFilterQueryBuilder) where(condition string, values ...any) {
	params := make([]any, len(values))
	for i, v := range values {
		params[i] = b.arg(v)
	}
	b.query += " AND " + fmt.Sprintf(condition, params...)
}

func buildJobListQuery(opts model.JobListOptions, cursor *model.JobCursor) (string, []any, error) {
	b := newJobFilterQueryBuilder(`SELECT ` + jobColumns + ` FROM jobs WHERE TRUE`)
	if opts.UserID != nil {
		b.where("user_id = %s", *opts.UserID)
	}
	if opts.StatusCode != nil {
		b.where("status_code = %s", string(*opts.StatusCode))
	}
	if opts.JobType != nil {
		b.where("job_type = %s", string(*opts.JobType))
	}
	if opts.Name != nil {
		b.where("name = %s", *opts.Name)
	}
	if opts.Start != nil {
		b.where("request_time >= %s", opts.Start.UTC())
	}
	if opts.End != nil {
		b.where("request_time <= %s", opts.End.UTC())
	}
	if cursor != nil {
		id, err := uuid.Parse(cursor.JobID)
		if err != nil {
			return "", nil, model.NewValidationError("invalid continuation token")
		}
		b.where("(request_time, job_id) < (%s, %s)", cursor.RequestTime.UTC(), id)
	}
	b.query += " ORDER BY request_time DESC, job_id DESC LIMIT " + b.arg(opts.Limit+1)
	return b.query, b.args, nil
}

// List returns one page of jobs, newest first. The page carries a continuation token when
// more rows remain.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error) {
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

	query, args, err := buildJobListQuery(opts, cursor)
	if err != nil {
		return nil, err
	}

	var jobs []*model.Job
	if err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, query, args...)
		if qErr != nil {
			return fmt.Errorf("query jobs: %w", qErr)
		}
		jobs, qErr = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		if qErr != nil {
			return fmt.Errorf("collect jobs: %w", qErr)
		}
		return nil
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	return model.PageJobs(jobs, opts.Limit)
}

// ListPending returns unclaimed PENDING jobs, highest priority first and oldest first within
// a priority.
func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = model.DefaultJobListLimit
	}
	if limit > model.MaxJobListLimit {
		limit = model.MaxJobListLimit
	}

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status_code = 'PENDING' AND execution_started = FALSE
			ORDER BY priority DESC, request_time ASC, job_id ASC
			LIMIT $1`, limit)
		if err != nil {
			return fmt.Errorf("query pending jobs: %w", err)
		}
		jobs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jobs, nil
}
