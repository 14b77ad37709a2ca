// Package model defines the core data types shared by the sarbatch admission and accounting layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JobType names a processing recipe, e.g. RTC_GAMMA or INSAR_ISCE_BURST.
type JobType string

// JobStatus represents the current status of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed by the execution layer.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusSucceeded indicates a job has finished successfully.
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "FAILED"
)

// MaxJobNameLength is the longest name a caller may attach to a job.
const MaxJobNameLength = 100

// Valid returns true if the JobStatus is one of the recognized values.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusSucceeded ||
		s == JobStatusFailed
}

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether the execution layer may move a job from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusSucceeded || next == JobStatusFailed
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses can be parsed from query strings.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// Job is a prepared job as persisted after admission.
type Job struct {
	JobID            string          `json:"job_id"                    db:"job_id"`
	UserID           string          `json:"user_id"                   db:"user_id"`
	JobType          JobType         `json:"job_type"                  db:"job_type"`
	JobParameters    map[string]any  `json:"job_parameters"            db:"job_parameters"`
	Name             *string         `json:"name,omitempty"            db:"name"`
	StatusCode       JobStatus       `json:"status_code"               db:"status_code"`
	ExecutionStarted bool            `json:"execution_started"         db:"execution_started"`
	RequestTime      time.Time       `json:"request_time"              db:"request_time"`
	CreditCost       decimal.Decimal `json:"credit_cost"               db:"credit_cost"`
	Priority         int             `json:"priority"                  db:"priority"`
	SubscriptionID   *string         `json:"subscription_id,omitempty" db:"subscription_id"`
	UpdatedAt        time.Time       `json:"-"                         db:"updated_at"`
}

// JobRequest is a single job as submitted by a caller, before defaults and pricing are applied.
type JobRequest struct {
	JobType       JobType        `json:"job_type"`
	JobParameters map[string]any `json:"job_parameters"`
	Name          *string        `json:"name,omitempty"`
}

// Validate checks the request fields that do not depend on the job-type catalogue.
func (r *JobRequest) Validate() error {
	if strings.TrimSpace(string(r.JobType)) == "" {
		return NewValidationError("job_type is required")
	}
	if r.Name != nil {
		if *r.Name == "" {
			return NewValidationError("job name must not be empty")
		}
		if len(*r.Name) > MaxJobNameLength {
			return NewValidationErrorf("job name must be at most %d characters", MaxJobNameLength)
		}
	}
	return nil
}

// BatchRequest groups the jobs a user submits together in one admission request.
type BatchRequest struct {
	UserID         string       `json:"-"`
	Jobs           []JobRequest `json:"jobs"`
	ValidateOnly   bool         `json:"validate_only,omitempty"`
	SubscriptionID *string      `json:"subscription_id,omitempty"`
}

// Validate checks the batch envelope. Per-job checks happen during admission.
func (r *BatchRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if len(r.Jobs) == 0 {
		return NewValidationError("at least one job is required")
	}
	return nil
}

// TotalCost sums the credit cost of the given jobs.
func TotalCost(jobs []*Job) decimal.Decimal {
	total := decimal.Zero
	for _, j := range jobs {
		total = total.Add(j.CreditCost)
	}
	return total
}

// UpdateJobRequest is a partial update of a persisted job. Nil fields are left untouched.
type UpdateJobRequest struct {
	StatusCode       *JobStatus `json:"status_code,omitempty"`
	ExecutionStarted *bool      `json:"execution_started,omitempty"`
	Priority         *int       `json:"priority,omitempty"`
	Name             *string    `json:"name,omitempty"`
	// ClearName removes the stored name. It cannot be combined with Name.
	ClearName bool `json:"-"`
}

// Validate checks that the update is well formed.
func (r *UpdateJobRequest) Validate() error {
	if r.StatusCode != nil && !r.StatusCode.Valid() {
		return NewValidationErrorf("invalid status_code %q", *r.StatusCode)
	}
	if r.Name != nil && r.ClearName {
		return NewValidationError("name cannot be set and cleared in the same update")
	}
	if r.Name != nil && (*r.Name == "" || len(*r.Name) > MaxJobNameLength) {
		return NewValidationErrorf("job name must be between 1 and %d characters", MaxJobNameLength)
	}
	if r.Priority != nil && *r.Priority < 0 {
		return NewValidationError("priority must be >= 0")
	}
	if r.IsEmpty() {
		return NewValidationError("update sets no fields")
	}
	return nil
}

// IsEmpty reports whether the update would change nothing.
func (r *UpdateJobRequest) IsEmpty() bool {
	return r.StatusCode == nil && r.ExecutionStarted == nil && r.Priority == nil &&
		r.Name == nil && !r.ClearName
}

// Apply applies the update to a copy of job and returns it.
func (r *UpdateJobRequest) Apply(job Job) Job {
	if r.StatusCode != nil {
		job.StatusCode = *r.StatusCode
	}
	if r.ExecutionStarted != nil {
		job.ExecutionStarted = *r.ExecutionStarted
	}
	if r.Priority != nil {
		job.Priority = *r.Priority
	}
	if r.Name != nil {
		name := *r.Name
		job.Name = &name
	}
	if r.ClearName {
		job.Name = nil
	}
	return job
}
