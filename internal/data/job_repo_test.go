package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
	apperrors "github.com/target/sarbatch/internal/errors"
	"github.com/target/sarbatch/internal/testutil"
)

func setupJobRepo(t *testing.T, db *sql.DB, users ...model.CreateUserParams) *JobRepo {
	t.Helper()
	tp := NewManualClock(testutil.TestTime())
	userRepo := NewUserRepo(db, RepoConfig{TimeProvider: tp})
	for _, u := range users {
		_, err := userRepo.CreateIfNotExists(context.Background(), u)
		require.NoError(t, err)
	}
	return NewJobRepo(db, RepoConfig{TimeProvider: tp})
}

func TestJobRepo_CreateBatchAndGet(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := setupJobRepo(t, db, testutil.ApprovedUser("alice", 10))
		ctx := context.Background()

		a := testutil.NewJob("alice").WithName("first").WithCost(decimal.RequireFromString("1.5")).Build()
		b := testutil.NewJob("alice").WithSubscription("sub-1").Build()
		require.NoError(t, repo.CreateBatch(ctx, []*model.Job{a, b}))

		got, err := repo.GetByID(ctx, a.JobID)
		require.NoError(t, err)
		assert.Equal(t, a.JobID, got.JobID)
		assert.Equal(t, model.JobStatusPending, got.StatusCode)
		assert.True(t, got.CreditCost.Equal(decimal.RequireFromString("1.5")))
		require.NotNil(t, got.Name)
		assert.Equal(t, "first", *got.Name)
		assert.True(t, got.RequestTime.Equal(testutil.TestTime()))
		assert.Contains(t, got.JobParameters, "granules")

		got, err = repo.GetByID(ctx, b.JobID)
		require.NoError(t, err)
		require.NotNil(t, got.SubscriptionID)
		assert.Equal(t, "sub-1", *got.SubscriptionID)

		_, err = repo.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, model.ErrJobNotFound)
		_, err = repo.GetByID(ctx, "not-a-uuid")
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}

func TestJobRepo_CreateBatch_AllOrNothing(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := setupJobRepo(t, db, testutil.ApprovedUser("alice", 10))
		ctx := context.Background()

		ok := testutil.NewJob("alice").Build()
		orphan := testutil.NewJob("ghost").Build()
		err := repo.CreateBatch(ctx, []*model.Job{ok, orphan})
		require.Error(t, err)
		assert.True(t, apperrors.IsForeignKey(err))

		_, err = repo.GetByID(ctx, ok.JobID)
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}

func TestJobRepo_CommitBatch(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := setupJobRepo(t, db, testutil.ApprovedUser("alice", 10))
		users := NewUserRepo(db, RepoConfig{})
		ctx := context.Background()

		job := testutil.NewJob("alice").WithCost(decimal.NewFromInt(4)).Build()
		require.NoError(t, repo.CommitBatch(ctx, core.CommitBatchParams{
			UserID: "alice", Amount: decimal.NewFromInt(4), Debit: true, Jobs: []*model.Job{job},
		}))
		user, err := users.Get(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, user.RemainingCredits.Decimal.Equal(decimal.NewFromInt(6)))

		tooExpensive := testutil.NewJob("alice").WithCost(decimal.NewFromInt(7)).Build()
		err = repo.CommitBatch(ctx, core.CommitBatchParams{
			UserID: "alice", Amount: decimal.NewFromInt(7), Debit: true, Jobs: []*model.Job{tooExpensive},
		})
		require.ErrorIs(t, err, model.ErrDatabaseCondition)
		_, err = repo.GetByID(ctx, tooExpensive.JobID)
		require.ErrorIs(t, err, model.ErrJobNotFound)

		orphan := testutil.NewJob("ghost").Build()
		err = repo.CommitBatch(ctx, core.CommitBatchParams{
			UserID: "alice", Amount: decimal.NewFromInt(1), Debit: true, Jobs: []*model.Job{orphan},
		})
		require.Error(t, err)
		user, err = users.Get(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, user.RemainingCredits.Decimal.Equal(decimal.NewFromInt(6)), "debit rolled back with the failed insert")
	})
}

func TestJobRepo_List(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := setupJobRepo(t, db, testutil.ApprovedUser("alice", 10), testutil.ApprovedUser("bob", 10))
		ctx := context.Background()

		base := testutil.TestTime()
		var jobs []*model.Job
		for i := range 5 {
			jobs = append(jobs, testutil.NewJob("alice").WithRequestTime(base.Add(time.Duration(i)*time.Minute)).Build())
		}
		jobs = append(jobs, testutil.NewJob("bob").WithType("INSAR_GAMMA").Build())
		require.NoError(t, repo.CreateBatch(ctx, jobs))

		alice := "alice"
		page, err := repo.List(ctx, model.JobListOptions{UserID: &alice, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Jobs, 2)
		assert.Equal(t, jobs[4].JobID, page.Jobs[0].JobID, "newest first")
		require.NotEmpty(t, page.NextCursor)

		seen := len(page.Jobs)
		for page.NextCursor != "" {
			page, err = repo.List(ctx, model.JobListOptions{UserID: &alice, Limit: 2, Cursor: page.NextCursor})
			require.NoError(t, err)
			seen += len(page.Jobs)
		}
		assert.Equal(t, 5, seen)

		jt := model.JobType("INSAR_GAMMA")
		page, err = repo.List(ctx, model.JobListOptions{JobType: &jt})
		require.NoError(t, err)
		require.Len(t, page.Jobs, 1)
		assert.Equal(t, "bob", page.Jobs[0].UserID)

		start := base.Add(2 * time.Minute)
		end := base.Add(3 * time.Minute)
		page, err = repo.List(ctx, model.JobListOptions{UserID: &alice, Start: &start, End: &end})
		require.NoError(t, err)
		assert.Len(t, page.Jobs, 2)

		_, err = repo.List(ctx, model.JobListOptions{Start: &end, End: &start})
		require.ErrorIs(t, err, model.ErrInvalidTimeRange)
		_, err = repo.List(ctx, model.JobListOptions{Cursor: "%%%"})
		require.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestJobRepo_ListPendingAndUpdate(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := setupJobRepo(t, db, testutil.ApprovedUser("alice", 10))
		ctx := context.Background()

		low := testutil.NewJob("alice").WithPriority(1).Build()
		high := testutil.NewJob("alice").WithPriority(50).Build()
		done := testutil.NewJob("alice").WithPriority(99).WithStatus(model.JobStatusSucceeded).Build()
		require.NoError(t, repo.CreateBatch(ctx, []*model.Job{low, high, done}))

		pending, err := repo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, high.JobID, pending[0].JobID)

		running := model.JobStatusRunning
		started := true
		updated, err := repo.Update(ctx, high.JobID, model.UpdateJobRequest{StatusCode: &running, ExecutionStarted: &started})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, updated.StatusCode)
		assert.True(t, updated.ExecutionStarted)

		pending, err = repo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, low.JobID, pending[0].JobID)

		_, err = repo.Update(ctx, done.JobID, model.UpdateJobRequest{StatusCode: &running})
		require.ErrorIs(t, err, model.ErrInvalidTransition)

		updated, err = repo.Update(ctx, low.JobID, model.UpdateJobRequest{ClearName: true})
		require.NoError(t, err)
		assert.Nil(t, updated.Name)

		_, err = repo.Update(ctx, uuid.NewString(), model.UpdateJobRequest{StatusCode: &running})
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}
