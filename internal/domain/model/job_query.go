package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultJobListLimit is used when a listing does not specify a limit.
const DefaultJobListLimit = 100

// MaxJobListLimit caps a single page.
const MaxJobListLimit = 1000

// JobListOptions groups filters for listing jobs. All filters are optional except UserID
// for user-facing listings.
type JobListOptions struct {
	UserID     *string    // Optional filter by owner
	StatusCode *JobStatus // Optional filter by status
	JobType    *JobType   // Optional filter by job type
	Name       *string    // Optional filter by exact name
	Start      *time.Time // Inclusive lower bound on request_time
	End        *time.Time // Inclusive upper bound on request_time
	Limit      int        // Page size
	Cursor     string     // Opaque continuation token from a previous page
}

// Normalize clamps the page size.
func (o *JobListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultJobListLimit
	}
	if o.Limit > MaxJobListLimit {
		o.Limit = MaxJobListLimit
	}
}

// JobPage is one page of a job listing.
type JobPage struct {
	Jobs       []*Job `json:"jobs"`
	NextCursor string `json:"next,omitempty"`
}

// JobCursor is the keyset position after the last job of a page (newest first ordering).
type JobCursor struct {
	RequestTime time.Time `json:"request_time"`
	JobID       string    `json:"job_id"`
}

// CursorAfter builds the cursor that resumes after job.
func CursorAfter(job *Job) JobCursor {
	return JobCursor{RequestTime: job.RequestTime, JobID: job.JobID}
}

// Encode renders the cursor as an opaque token.
func (c JobCursor) Encode() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeJobCursor parses a token produced by JobCursor.Encode.
func DecodeJobCursor(token string) (JobCursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return JobCursor{}, NewValidationErrorf("invalid continuation token: %v", err)
	}

	var cur JobCursor
	if err = json.Unmarshal(raw, &cur); err != nil {
		return JobCursor{}, NewValidationErrorf("invalid continuation token: %v", err)
	}
	if cur.JobID == "" || cur.RequestTime.IsZero() {
		return JobCursor{}, NewValidationError("invalid continuation token")
	}
	return cur, nil
}

// Before reports whether job sorts after the cursor position in newest-first order.
func (c JobCursor) Before(job *Job) bool {
	if job.RequestTime.Equal(c.RequestTime) {
		return job.JobID < c.JobID
	}
	return job.RequestTime.Before(c.RequestTime)
}

// ErrInvalidTimeRange is returned when Start is after End.
var ErrInvalidTimeRange = errors.New("start must not be after end")

// PageJobs builds a page from a query that fetched up to limit+1 rows. The extra row only
// signals that a continuation token is needed.
func PageJobs(jobs []*Job, limit int) (*JobPage, error) {
	page := &JobPage{Jobs: jobs}
	if page.Jobs == nil {
		page.Jobs = []*Job{}
	}
	if limit <= 0 || len(jobs) <= limit {
		return page, nil
	}
	page.Jobs = jobs[:limit]
	next, err := CursorAfter(page.Jobs[limit-1]).Encode()
	if err != nil {
		return nil, err
	}
	page.NextCursor = next
	return page, nil
}
