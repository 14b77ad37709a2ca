package memstore

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/shopspring/decimal"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
)

// UserStore implements core.UserRepository.
type UserStore struct {
	store *Store
}

var _ core.UserRepository = (*UserStore)(nil)

func getUser(txn *memdb.Txn, userID string) (*model.User, error) {
	raw, err := txn.First(usersTable, idIndex, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if raw == nil {
		return nil, model.ErrUserNotFound
	}
	return raw.(*model.User), nil
}

// Get returns the ledger record for userID.
func (s *UserStore) Get(ctx context.Context, userID string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.store.db.Txn(false)
	defer txn.Abort()
	u, err := getUser(txn, userID)
	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

// CreateIfNotExists inserts a NOT_STARTED record only if none exists.
func (s *UserStore) CreateIfNotExists(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()

	if _, err := getUser(txn, params.UserID); err == nil {
		return nil, model.ErrDatabaseCondition
	}
	now := s.store.now().UTC()
	u := &model.User{
		UserID:                 params.UserID,
		ApplicationStatus:      model.ApplicationNotStarted,
		RemainingCredits:       params.RemainingCredits,
		MonthOfLastCreditReset: params.Month,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := txn.Insert(usersTable, u); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	txn.Commit()
	return cloneUser(u), nil
}

// ResetCredits applies only when the stored month differs from params.Month.
func (s *UserStore) ResetCredits(ctx context.Context, params model.ResetCreditsParams) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()

	cur, err := getUser(txn, params.UserID)
	if err != nil {
		return nil, model.ErrDatabaseCondition
	}
	if cur.MonthOfLastCreditReset == params.Month {
		return nil, model.ErrDatabaseCondition
	}
	next := cloneUser(cur)
	next.RemainingCredits = decimal.NewNullDecimal(params.Credits)
	next.MonthOfLastCreditReset = params.Month
	next.UpdatedAt = s.store.now().UTC()
	if err = txn.Insert(usersTable, next); err != nil {
		return nil, fmt.Errorf("reset credits: %w", err)
	}
	txn.Commit()
	return cloneUser(next), nil
}

// DecrementCredits subtracts amount when the balance covers it.
func (s *UserStore) DecrementCredits(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return model.ErrNegativeAmount
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()
	if err := s.store.debit(txn, userID, amount); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Update applies a partial update to the ledger record.
func (s *UserStore) Update(ctx context.Context, userID string, req model.UpdateUserRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.store.db.Txn(true)
	defer txn.Abort()

	cur, err := getUser(txn, userID)
	if err != nil {
		return nil, err
	}
	next := req.Apply(*cloneUser(cur))
	next.UpdatedAt = s.store.now().UTC()
	if err = txn.Insert(usersTable, &next); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	txn.Commit()
	return cloneUser(&next), nil
}

// debit is the conditional decrement shared with CommitBatch. Unlimited balances never
// satisfy the guard.
func (s *Store) debit(txn *memdb.Txn, userID string, amount decimal.Decimal) error {
	cur, err := getUser(txn, userID)
	if err != nil {
		return model.ErrDatabaseCondition
	}
	if !cur.RemainingCredits.Valid || cur.RemainingCredits.Decimal.LessThan(amount) {
		return model.ErrDatabaseCondition
	}
	next := cloneUser(cur)
	next.RemainingCredits = decimal.NewNullDecimal(cur.RemainingCredits.Decimal.Sub(amount))
	next.UpdatedAt = s.now().UTC()
	if err = txn.Insert(usersTable, next); err != nil {
		return fmt.Errorf("decrement credits: %w", err)
	}
	return nil
}
