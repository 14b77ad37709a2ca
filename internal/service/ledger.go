package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
)

const (
	// DefaultCreditsPerUser is the balance given to new users and at each monthly reset.
	DefaultCreditsPerUser = 1000
	// DefaultLedgerAttempts bounds the re-fetches after a lost create or reset race.
	DefaultLedgerAttempts = 5
)

// LedgerConfig holds the credit policy of a deployment.
type LedgerConfig struct {
	// DefaultCredits seeds new users and is the monthly allowance. Unset means
	// DefaultCreditsPerUser; an explicit zero starts users with an empty balance.
	DefaultCredits decimal.NullDecimal
	ResetMonthly   bool
	// MaxAttempts bounds GetOrCreate's re-fetches after a conditional write loses a race.
	MaxAttempts uint
	// Now defaults to time.Now.
	Now func() time.Time
}

// LedgerServiceOptions groups dependencies for LedgerService.
type LedgerServiceOptions struct {
	Repo   core.UserRepository // Required: user ledger records
	Config LedgerConfig        // Optional: zero values pick the defaults
	Logger *slog.Logger        // Optional: structured logger
}

// LedgerService owns the per-user credit balance and the access application workflow.
type LedgerService struct {
	repo   core.UserRepository
	cfg    LedgerConfig
	logger *slog.Logger
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(opts LedgerServiceOptions) (*LedgerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("UserRepository is required")
	}
	cfg := opts.Config
	if !cfg.DefaultCredits.Valid {
		cfg.DefaultCredits = decimal.NewNullDecimal(decimal.NewFromInt(DefaultCreditsPerUser))
	}
	if cfg.DefaultCredits.Decimal.IsNegative() {
		return nil, errors.New("DefaultCredits must be >= 0")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultLedgerAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{repo: opts.Repo, cfg: cfg, logger: logger.With("component", "ledger_service")}, nil
}

// MustNewLedgerService constructs a LedgerService and panics on error.
func MustNewLedgerService(opts LedgerServiceOptions) *LedgerService {
	svc, err := NewLedgerService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create LedgerService: %v", err))
	}
	return svc
}

// Get returns the stored record without creating or resetting it.
func (s *LedgerService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.repo.Get(ctx, userID)
}

// GetOrCreate returns the user's record, creating it on first contact and applying the
// monthly credit reset when one is due. Losing a create or reset race to a concurrent
// request re-fetches instead of failing.
func (s *LedgerService) GetOrCreate(ctx context.Context, userID string) (*model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewValidationError("user id is required")
	}

	var user *model.User
	err := retry.Do(
		func() error {
			var err error
			user, err = s.getOrCreateOnce(ctx, userID)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.cfg.MaxAttempts),
		retry.Delay(5*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, model.ErrDatabaseCondition) }),
		retry.OnRetry(func(n uint, err error) {
			s.logger.DebugContext(ctx, "ledger write lost a race, re-fetching", "user_id", userID, "attempt", n+1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("get or create user %s: %w", userID, err)
	}
	return user, nil
}

func (s *LedgerService) getOrCreateOnce(ctx context.Context, userID string) (*model.User, error) {
	month := model.CurrentMonth(s.cfg.Now())

	user, err := s.repo.Get(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return s.repo.CreateIfNotExists(ctx, model.CreateUserParams{
			UserID:           userID,
			RemainingCredits: s.cfg.DefaultCredits,
			Month:            month,
		})
	}
	if err != nil {
		return nil, err
	}

	if !s.resetDue(user, month) {
		return user, nil
	}
	reset, err := s.repo.ResetCredits(ctx, model.ResetCreditsParams{
		UserID:  userID,
		Credits: user.MonthlyCredits(s.cfg.DefaultCredits.Decimal),
		Month:   month,
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "reset monthly credits",
		"user_id", userID,
		"month", month,
		"credits", reset.RemainingCredits.Decimal.String(),
	)
	return reset, nil
}

func (s *LedgerService) resetDue(user *model.User, month string) bool {
	return s.cfg.ResetMonthly &&
		user.MonthOfLastCreditReset != month &&
		user.ApplicationStatus == model.ApplicationApproved &&
		!user.HasUnlimitedCredits()
}

// Decrement debits amount from the user's balance in a single conditional write. A balance
// that no longer covers amount yields *model.InsufficientCreditsError; a lost race is not
// retried. Users with unlimited credits are never debited.
func (s *LedgerService) Decrement(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return model.ErrNegativeAmount
	}
	err := s.repo.DecrementCredits(ctx, userID, amount)
	if !errors.Is(err, model.ErrDatabaseCondition) {
		return err
	}

	return s.shortfall(ctx, userID, amount)
}

// shortfall explains a failed debit guard using the balance as it is now.
func (s *LedgerService) shortfall(ctx context.Context, userID string, amount decimal.Decimal) error {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("decrement credits: %w", err)
	}
	if user.HasUnlimitedCredits() {
		return nil
	}
	return &model.InsufficientCreditsError{Total: amount, Remaining: user.RemainingCredits.Decimal}
}

// CheckApplicationStatus returns nil only for approved users. The three user-facing refusals
// are distinct *model.ApplicationStatusError reasons; an unrecognized stored value is an
// integrity fault wrapping model.ErrInvalidApplicationStatus.
func CheckApplicationStatus(user *model.User) error {
	var reason error
	switch user.ApplicationStatus {
	case model.ApplicationApproved:
		return nil
	case model.ApplicationNotStarted:
		reason = model.ErrApplicationNotStarted
	case model.ApplicationPending:
		reason = model.ErrApplicationPending
	case model.ApplicationRejected:
		reason = model.ErrApplicationRejected
	default:
		reason = model.ErrInvalidApplicationStatus
	}
	return &model.ApplicationStatusError{UserID: user.UserID, Status: user.ApplicationStatus, Reason: reason}
}

// SubmitApplication records the user's request for access. Users who have not applied or
// are still pending may (re)submit; decided applications are closed.
func (s *LedgerService) SubmitApplication(ctx context.Context, userID, useCase string) (*model.User, error) {
	useCase = strings.TrimSpace(useCase)
	if useCase == "" {
		return nil, model.NewValidationError("use_case is required")
	}

	user, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch user.ApplicationStatus {
	case model.ApplicationNotStarted, model.ApplicationPending:
	case model.ApplicationApproved, model.ApplicationRejected:
		return nil, fmt.Errorf("%w: %s", model.ErrApplicationClosed, user.ApplicationStatus)
	default:
		return nil, CheckApplicationStatus(user)
	}

	pending := model.ApplicationPending
	updated, err := s.repo.Update(ctx, userID, model.UpdateUserRequest{
		ApplicationStatus: &pending,
		UseCase:           &useCase,
	})
	if err != nil {
		return nil, fmt.Errorf("submit application: %w", err)
	}
	s.logger.InfoContext(ctx, "application submitted", "user_id", userID)
	return updated, nil
}

// SetApplicationStatus records a reviewer's decision.
func (s *LedgerService) SetApplicationStatus(
	ctx context.Context,
	userID string,
	status model.ApplicationStatus,
) (*model.User, error) {
	return s.adminUpdate(ctx, userID, model.UpdateUserRequest{ApplicationStatus: &status})
}

// SetCredits replaces the remaining balance. An invalid value grants unlimited credits.
func (s *LedgerService) SetCredits(ctx context.Context, userID string, credits decimal.NullDecimal) (*model.User, error) {
	return s.adminUpdate(ctx, userID, model.UpdateUserRequest{RemainingCredits: &credits})
}

// SetCreditsPerMonth overrides the monthly allowance. An invalid value restores the default.
func (s *LedgerService) SetCreditsPerMonth(
	ctx context.Context,
	userID string,
	credits decimal.NullDecimal,
) (*model.User, error) {
	return s.adminUpdate(ctx, userID, model.UpdateUserRequest{CreditsPerMonth: &credits})
}

// SetPriorityOverride pins the priority of the user's future jobs. Nil clears the override.
func (s *LedgerService) SetPriorityOverride(ctx context.Context, userID string, override *int) (*model.User, error) {
	req := model.UpdateUserRequest{PriorityOverride: override}
	if override == nil {
		req.ClearPriorityOverride = true
	}
	return s.adminUpdate(ctx, userID, req)
}

func (s *LedgerService) adminUpdate(ctx context.Context, userID string, req model.UpdateUserRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, userID, req)
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", userID, err)
	}
	s.logger.InfoContext(ctx, "user record updated", "user_id", userID)
	return updated, nil
}
