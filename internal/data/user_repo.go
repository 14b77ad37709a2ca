package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/data/pgxutil"
	"github.com/target/sarbatch/internal/domain/model"
	apperrors "github.com/target/sarbatch/internal/errors"
)

// UserRepo stores the per-user credit ledger.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.UserRepository = (*UserRepo)(nil)

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB, cfg RepoConfig) *UserRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepo{DB: db, timeProvider: tp, logger: logger.With("component", "user_repo")}
}

const userColumns = `
  user_id,
  application_status,
  remaining_credits,
  credits_per_month,
  priority_override,
  month_of_last_credit_reset,
  use_case,
  created_at,
  updated_at
`

// queryOneUser runs a statement that returns at most one user row.
func (r *UserRepo) queryOneUser(ctx context.Context, query string, args ...any) (*model.User, error) {
	var user *model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		user, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.User])
		return err
	})
	return user, err
}

// Get returns the ledger record for userID.
func (r *UserRepo) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := r.queryOneUser(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", apperrors.MapDBError(err))
	}
	return user, nil
}

// CreateIfNotExists inserts a NOT_STARTED record. A concurrent insert that won the race
// yields model.ErrDatabaseCondition.
func (r *UserRepo) CreateIfNotExists(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	now := r.timeProvider.Now().UTC()
	user, err := r.queryOneUser(ctx, `
		INSERT INTO users (user_id, application_status, remaining_credits, month_of_last_credit_reset, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING `+userColumns,
		params.UserID, string(model.ApplicationNotStarted), params.RemainingCredits, params.Month, now,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrDatabaseCondition
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", apperrors.MapDBError(err))
	}
	r.logger.InfoContext(ctx, "created user record", "user_id", params.UserID)
	return user, nil
}

// ResetCredits sets the balance for a new month. It only applies when the stored month
// differs from params.Month.
func (r *UserRepo) ResetCredits(ctx context.Context, params model.ResetCreditsParams) (*model.User, error) {
	user, err := r.queryOneUser(ctx, `
		UPDATE users
		SET remaining_credits = $2, month_of_last_credit_reset = $3, updated_at = $4
		WHERE user_id = $1 AND month_of_last_credit_reset <> $3
		RETURNING `+userColumns,
		params.UserID, params.Credits, params.Month, r.timeProvider.Now().UTC(),
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrDatabaseCondition
	}
	if err != nil {
		return nil, fmt.Errorf("reset credits: %w", apperrors.MapDBError(err))
	}
	return user, nil
}

// DecrementCredits subtracts amount when the balance covers it.
func (r *UserRepo) DecrementCredits(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return model.ErrNegativeAmount
	}
	return pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return debitCredits(ctx, conn, debitParams{
			UserID: userID,
			Amount: amount,
			Now:    r.timeProvider.Now().UTC(),
		})
	})
}

// Update applies a partial update to the ledger record.
func (r *UserRepo) Update(ctx context.Context, userID string, req model.UpdateUserRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *model.User
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Attempts: txAttempts,
		Fn:       func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, userID)
			if err != nil {
				return err
			}
			current, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.User])
			if err != nil {
				return err
			}

			next := req.Apply(*current)
			rows, err = tx.Query(ctx, `
				UPDATE users
				SET application_status = $2, remaining_credits = $3, credits_per_month = $4,
				    priority_override = $5, use_case = $6, updated_at = $7
				WHERE user_id = $1
				RETURNING `+userColumns,
				userID, string(next.ApplicationStatus), next.RemainingCredits, next.CreditsPerMonth,
				next.PriorityOverride, next.UseCase, r.timeProvider.Now().UTC(),
			)
			if err != nil {
				return err
			}
			updated, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.User])
			return err
		},
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", apperrors.MapDBError(err))
	}
	return updated, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type debitParams struct {
	UserID string
	Amount decimal.Decimal
	Now    time.Time
}

// debitCredits is the conditional decrement shared by DecrementCredits and CommitBatch. A
// NULL balance never satisfies the guard, so unlimited users are never debited.
func debitCredits(ctx context.Context, db execer, p debitParams) error {
	tag, err := db.Exec(ctx, `
		UPDATE users
		SET remaining_credits = remaining_credits - $2, updated_at = $3
		WHERE user_id = $1 AND remaining_credits >= $2`,
		p.UserID, p.Amount, p.Now,
	)
	if err != nil {
		return fmt.Errorf("decrement credits: %w", apperrors.MapDBError(err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDatabaseCondition
	}
	return nil
}
