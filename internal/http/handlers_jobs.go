// Package httpx provides the JSON API for submitting SAR batch jobs and inspecting credits.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/sarbatch/internal/domain/model"
)

// JobAdmitter admits batches of jobs.
type JobAdmitter interface {
	AdmitBatch(ctx context.Context, req model.BatchRequest) ([]*model.Job, error)
}

// JobReader reads admitted jobs.
type JobReader interface {
	Get(ctx context.Context, jobID string) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error)
}

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Admission JobAdmitter
	Jobs      JobReader
	Logger    *slog.Logger
}

type submitJobsResponse struct {
	Jobs         []*model.Job `json:"jobs"`
	ValidateOnly bool         `json:"validate_only"`
}

// SubmitJobs admits a batch for the calling user. With validate_only set the batch is
// validated and priced but nothing is debited or stored.
func (h *JobHandlers) SubmitJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthenticated", Err: errMissingUser})
		return
	}

	var req model.BatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.UserID = userID

	jobs, err := h.Admission.AdmitBatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, submitJobsResponse{Jobs: jobs, ValidateOnly: req.ValidateOnly})
}

// ListJobs returns the caller's jobs, newest first. Supported query parameters are
// status_code, job_type, name, start, end (RFC 3339), limit and next.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthenticated", Err: errMissingUser})
		return
	}

	opts, err := parseJobListOptions(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: err})
		return
	}
	opts.UserID = &userID

	page, err := h.Jobs.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if page.Jobs == nil {
		page.Jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, page)
}

// GetJob returns one of the caller's jobs. Jobs owned by other users are reported as missing.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthenticated", Err: errMissingUser})
		return
	}

	job, err := h.Jobs.Get(r.Context(), r.PathValue("id"))
	if err == nil && job.UserID != userID {
		err = model.ErrJobNotFound
	}
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func parseJobListOptions(r *http.Request) (model.JobListOptions, error) {
	q := r.URL.Query()
	opts := model.JobListOptions{
		Limit:  model.DefaultJobListLimit,
		Cursor: strings.TrimSpace(q.Get("next")),
	}

	if v := strings.TrimSpace(q.Get("status_code")); v != "" {
		var status model.JobStatus
		if err := status.UnmarshalText([]byte(v)); err != nil {
			return opts, err
		}
		opts.StatusCode = &status
	}
	if v := strings.TrimSpace(q.Get("job_type")); v != "" {
		jobType := model.JobType(v)
		opts.JobType = &jobType
	}
	if v := q.Get("name"); v != "" {
		opts.Name = &v
	}

	var err error
	if opts.Start, err = parseTimeQuery(q.Get("start"), "start"); err != nil {
		return opts, err
	}
	if opts.End, err = parseTimeQuery(q.Get("end"), "end"); err != nil {
		return opts, err
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, convErr := strconv.Atoi(v)
		if convErr != nil || limit < 1 {
			return opts, errors.New("limit must be a positive integer")
		}
		opts.Limit = min(limit, model.MaxJobListLimit)
	}
	return opts, nil
}

func parseTimeQuery(v, key string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil //nolint:nilnil // absent filter
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.New(key + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}
