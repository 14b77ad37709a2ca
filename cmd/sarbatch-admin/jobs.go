package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/target/sarbatch/internal/bootstrap"
	"github.com/target/sarbatch/internal/domain/model"
)

type previewOptions struct {
	UserID string
	File   string
}

type listPendingOptions struct {
	Limit int
}

func parsePreviewFlags(args []string) (previewOptions, error) {
	fs := newFlagSet("preview")
	var opts previewOptions
	fs.StringVar(&opts.UserID, "user", "", "User id to price the batch for")
	fs.StringVar(&opts.File, "file", "", "Path to a JSON batch ({\"jobs\": [...]}); '-' reads stdin")
	if err := fs.Parse(args); err != nil {
		return previewOptions{}, err
	}
	var err error
	if opts.UserID, err = requireUser(opts.UserID); err != nil {
		return previewOptions{}, err
	}
	if strings.TrimSpace(opts.File) == "" {
		return previewOptions{}, errors.New("--file is required")
	}
	return opts, nil
}

func parseListPendingFlags(args []string) (listPendingOptions, error) {
	fs := newFlagSet("list-pending")
	opts := listPendingOptions{}
	fs.IntVar(&opts.Limit, "limit", model.DefaultJobListLimit, "Maximum number of jobs to list")
	if err := fs.Parse(args); err != nil {
		return listPendingOptions{}, err
	}
	if opts.Limit < 1 || opts.Limit > model.MaxJobListLimit {
		return listPendingOptions{}, fmt.Errorf("--limit must be between 1 and %d", model.MaxJobListLimit)
	}
	return opts, nil
}

// readBatch decodes a batch file. The file may hold a bare array of jobs or a full request.
func readBatch(r io.Reader) (model.BatchRequest, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return model.BatchRequest{}, fmt.Errorf("read batch: %w", err)
	}

	var req model.BatchRequest
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(raw, &req.Jobs)
	} else {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return model.BatchRequest{}, fmt.Errorf("decode batch: %w", err)
	}
	return req, nil
}

func openBatch(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path) //nolint:gosec // operator-supplied path
}

func runPreview(cmdCtx *commandContext, args []string) error {
	opts, err := parsePreviewFlags(args)
	if err != nil {
		return err
	}
	f, err := openBatch(opts.File)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	req, err := readBatch(f)
	if err != nil {
		return err
	}
	req.UserID = opts.UserID
	req.ValidateOnly = true

	return withServices(cmdCtx, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		jobs, err := svc.Admission.AdmitBatch(ctx, req)
		if err != nil {
			return err
		}
		return printJobs(os.Stdout, jobs, true)
	})
}

func runListPending(cmdCtx *commandContext, args []string) error {
	opts, err := parseListPendingFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		jobs, err := svc.Jobs.ListPending(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return writeln(os.Stdout, "No pending jobs")
		}
		return printJobs(os.Stdout, jobs, false)
	})
}

func printJobs(w io.Writer, jobs []*model.Job, withTotal bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Job ID\tUser\tType\tName\tPriority\tCredits\tRequested"); err != nil {
		return fmt.Errorf("write jobs header: %w", err)
	}
	for _, j := range jobs {
		name := "-"
		if j.Name != nil {
			name = *j.Name
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			j.JobID, j.UserID, j.JobType, name, j.Priority, j.CreditCost.String(),
			j.RequestTime.UTC().Format("2006-01-02T15:04:05Z"),
		); err != nil {
			return fmt.Errorf("write job %s: %w", j.JobID, err)
		}
	}
	if withTotal {
		if err := writef(tw, "\t\t\t\tTotal\t%s\t\n", model.TotalCost(jobs).String()); err != nil {
			return fmt.Errorf("write total: %w", err)
		}
	}
	return tw.Flush()
}
