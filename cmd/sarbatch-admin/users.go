package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/bootstrap"
	"github.com/target/sarbatch/internal/domain/model"
)

const unlimitedCredits = "unlimited"

type userOptions struct {
	UserID string
	JSON   bool
}

type statusOptions struct {
	UserID string
	Status model.ApplicationStatus
}

type creditsOptions struct {
	UserID   string
	Credits  decimal.NullDecimal
	PerMonth bool
}

type priorityOptions struct {
	UserID   string
	Override *int
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("--user is required")
	}
	return userID, nil
}

func parseUserFlags(args []string) (userOptions, error) {
	fs := newFlagSet("get-user")
	var opts userOptions
	fs.StringVar(&opts.UserID, "user", "", "User id")
	fs.BoolVar(&opts.JSON, "json", false, "Print the raw JSON record")
	if err := fs.Parse(args); err != nil {
		return userOptions{}, err
	}
	var err error
	opts.UserID, err = requireUser(opts.UserID)
	return opts, err
}

func parseStatusFlags(args []string) (statusOptions, error) {
	fs := newFlagSet("set-status")
	var userID, status string
	fs.StringVar(&userID, "user", "", "User id")
	fs.StringVar(&status, "status", "", "New application status")
	if err := fs.Parse(args); err != nil {
		return statusOptions{}, err
	}
	userID, err := requireUser(userID)
	if err != nil {
		return statusOptions{}, err
	}
	s := model.ApplicationStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !s.Valid() {
		return statusOptions{}, fmt.Errorf("--status must be one of NOT_STARTED, PENDING, APPROVED, REJECTED; got %q", status)
	}
	return statusOptions{UserID: userID, Status: s}, nil
}

// parseCredits accepts a non-negative decimal or "unlimited".
func parseCredits(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, unlimitedCredits) {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("--credits must be a number or %q: %w", unlimitedCredits, err)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, errors.New("--credits must be non-negative")
	}
	return decimal.NewNullDecimal(d), nil
}

func parseCreditsFlags(args []string) (creditsOptions, error) {
	fs := newFlagSet("set-credits")
	var userID, credits string
	var perMonth bool
	fs.StringVar(&userID, "user", "", "User id")
	fs.StringVar(&credits, "credits", "", "Credit amount, or 'unlimited'")
	fs.BoolVar(&perMonth, "per-month", false,
		"Set the monthly allowance instead of the remaining balance; 'unlimited' restores the default")
	if err := fs.Parse(args); err != nil {
		return creditsOptions{}, err
	}
	userID, err := requireUser(userID)
	if err != nil {
		return creditsOptions{}, err
	}
	if strings.TrimSpace(credits) == "" {
		return creditsOptions{}, errors.New("--credits is required")
	}
	amount, err := parseCredits(credits)
	if err != nil {
		return creditsOptions{}, err
	}
	return creditsOptions{UserID: userID, Credits: amount, PerMonth: perMonth}, nil
}

func parsePriorityFlags(args []string) (priorityOptions, error) {
	fs := newFlagSet("set-priority-override")
	var userID, priority string
	var clearOverride bool
	fs.StringVar(&userID, "user", "", "User id")
	fs.StringVar(&priority, "priority", "", "Priority to pin on future jobs")
	fs.BoolVar(&clearOverride, "clear", false, "Remove the override")
	if err := fs.Parse(args); err != nil {
		return priorityOptions{}, err
	}
	userID, err := requireUser(userID)
	if err != nil {
		return priorityOptions{}, err
	}

	switch {
	case clearOverride && priority != "":
		return priorityOptions{}, errors.New("--priority and --clear are mutually exclusive")
	case clearOverride:
		return priorityOptions{UserID: userID}, nil
	case priority == "":
		return priorityOptions{}, errors.New("one of --priority or --clear is required")
	}
	p, err := strconv.Atoi(strings.TrimSpace(priority))
	if err != nil {
		return priorityOptions{}, fmt.Errorf("--priority must be an integer: %w", err)
	}
	return priorityOptions{UserID: userID, Override: &p}, nil
}

func runGetUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		user, err := svc.Ledger.Get(ctx, opts.UserID)
		if err != nil {
			return err
		}
		if opts.JSON {
			return printUserJSON(os.Stdout, user)
		}
		return printUser(os.Stdout, user)
	})
}

func runSetStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatusFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		user, err := svc.Ledger.SetApplicationStatus(ctx, opts.UserID, opts.Status)
		if err != nil {
			return err
		}
		cmdCtx.Logger.Info("application status updated", "user_id", opts.UserID, "status", string(opts.Status))
		return printUser(os.Stdout, user)
	})
}

func runSetCredits(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreditsFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		var (
			user *model.User
			err  error
		)
		if opts.PerMonth {
			user, err = svc.Ledger.SetCreditsPerMonth(ctx, opts.UserID, opts.Credits)
		} else {
			user, err = svc.Ledger.SetCredits(ctx, opts.UserID, opts.Credits)
		}
		if err != nil {
			return err
		}
		cmdCtx.Logger.Info("credits updated",
			"user_id", opts.UserID,
			"credits", formatCredits(opts.Credits),
			"per_month", opts.PerMonth,
		)
		return printUser(os.Stdout, user)
	})
}

func runSetPriorityOverride(cmdCtx *commandContext, args []string) error {
	opts, err := parsePriorityFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		user, err := svc.Ledger.SetPriorityOverride(ctx, opts.UserID, opts.Override)
		if err != nil {
			return err
		}
		return printUser(os.Stdout, user)
	})
}

func formatCredits(c decimal.NullDecimal) string {
	if !c.Valid {
		return unlimitedCredits
	}
	return c.Decimal.String()
}

func printUserJSON(w io.Writer, user *model.User) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(user)
}

func printUser(w io.Writer, user *model.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	override := "-"
	if user.PriorityOverride != nil {
		override = strconv.Itoa(*user.PriorityOverride)
	}
	perMonth := "default"
	if user.CreditsPerMonth.Valid {
		perMonth = user.CreditsPerMonth.Decimal.String()
	}
	useCase := "-"
	if user.UseCase != nil && *user.UseCase != "" {
		useCase = *user.UseCase
	}

	rows := [][2]string{
		{"User", user.UserID},
		{"Application status", string(user.ApplicationStatus)},
		{"Remaining credits", formatCredits(user.RemainingCredits)},
		{"Credits per month", perMonth},
		{"Priority override", override},
		{"Last credit reset", user.MonthOfLastCreditReset},
		{"Use case", useCase},
	}
	for _, r := range rows {
		if err := writef(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return fmt.Errorf("write user: %w", err)
		}
	}
	return tw.Flush()
}
