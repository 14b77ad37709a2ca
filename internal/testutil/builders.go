// Package testutil provides database, Redis, and fixture helpers shared by sarbatch tests.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/domain/model"
)

// JobBuilder provides a fluent interface for building admitted jobs for testing.
type JobBuilder struct {
	job *model.Job
}

// NewJob creates a JobBuilder with a fresh id, PENDING status and a one-credit cost.
func NewJob(userID string) *JobBuilder {
	return &JobBuilder{
		job: &model.Job{
			JobID:         uuid.NewString(),
			UserID:        userID,
			JobType:       "RTC_GAMMA",
			JobParameters: map[string]any{"granules": []any{"S1A_IW_GRDH_1SDV_20200101T000000_20200101T000025_030000_037000_ABCD"}},
			StatusCode:    model.JobStatusPending,
			RequestTime:   TestTime(),
			CreditCost:    decimal.NewFromInt(1),
		},
	}
}

// WithType sets the job type.
func (b *JobBuilder) WithType(jobType model.JobType) *JobBuilder {
	b.job.JobType = jobType
	return b
}

// WithPriority sets the priority.
func (b *JobBuilder) WithPriority(priority int) *JobBuilder {
	b.job.Priority = priority
	return b
}

// WithStatus sets the status code.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.StatusCode = status
	return b
}

// WithName sets the job name.
func (b *JobBuilder) WithName(name string) *JobBuilder {
	b.job.Name = &name
	return b
}

// WithRequestTime sets the request time.
func (b *JobBuilder) WithRequestTime(t time.Time) *JobBuilder {
	b.job.RequestTime = t
	return b
}

// WithCost sets the credit cost.
func (b *JobBuilder) WithCost(c decimal.Decimal) *JobBuilder {
	b.job.CreditCost = c
	return b
}

// WithSubscription sets the subscription id.
func (b *JobBuilder) WithSubscription(id string) *JobBuilder {
	b.job.SubscriptionID = &id
	return b
}

// Build returns the job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}

// ApprovedUser returns create parameters for a user with a finite balance in the test month.
func ApprovedUser(userID string, credits int64) model.CreateUserParams {
	return model.CreateUserParams{
		UserID:           userID,
		RemainingCredits: decimal.NewNullDecimal(decimal.NewFromInt(credits)),
		Month:            model.CurrentMonth(TestTime()),
	}
}

// StatusPtr returns a pointer to s.
func StatusPtr(s model.ApplicationStatus) *model.ApplicationStatus {
	return &s
}
