package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sarbatch/internal/testutil"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil"},
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock wrapped", err: fmt.Errorf("commit tx: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}},
		{name: "no rows", err: pgx.ErrNoRows},
		{name: "timeout", err: context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func countUsers(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT count(*) FROM users`).Scan(&n))
	return n
}

func insertUser(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (user_id, application_status, month_of_last_credit_reset, created_at, updated_at)
		VALUES ($1, 'NOT_STARTED', '2024-01', now(), now())`, id)
	return err
}

func TestWithPgxTx(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()

		t.Run("commits", func(t *testing.T) {
			err := WithPgxTx(ctx, db, TxConfig{Fn: func(tx pgx.Tx) error { return insertUser(ctx, tx, "tx-ok") }})
			require.NoError(t, err)
			assert.Equal(t, 1, countUsers(t, db))
		})

		t.Run("rolls back on error", func(t *testing.T) {
			boom := errors.New("boom")
			err := WithPgxTx(ctx, db, TxConfig{
				Attempts: 3,
				Fn: func(tx pgx.Tx) error {
					if err := insertUser(ctx, tx, "tx-fail"); err != nil {
						return err
					}
					return boom
				},
			})
			require.ErrorIs(t, err, boom)
			assert.Equal(t, 1, countUsers(t, db))
		})

		t.Run("reruns aborted transactions", func(t *testing.T) {
			calls := 0
			err := WithPgxTx(ctx, db, TxConfig{
				Attempts: 3,
				Fn: func(tx pgx.Tx) error {
					calls++
					if err := insertUser(ctx, tx, "tx-retry"); err != nil {
						return err
					}
					if calls == 1 {
						return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
					}
					return nil
				},
			})
			require.NoError(t, err)
			assert.Equal(t, 2, calls)
			assert.Equal(t, 2, countUsers(t, db), "first attempt must be rolled back")
		})

		t.Run("gives up after attempts", func(t *testing.T) {
			calls := 0
			err := WithPgxTx(ctx, db, TxConfig{
				Attempts: 2,
				Fn: func(pgx.Tx) error {
					calls++
					return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
				},
			})
			require.Error(t, err)
			assert.True(t, Retryable(err))
			assert.Equal(t, 2, calls)
		})

		t.Run("read only", func(t *testing.T) {
			err := WithPgxTx(ctx, db, TxConfig{
				AccessMode: pgx.ReadOnly,
				Fn:         func(tx pgx.Tx) error { return insertUser(ctx, tx, "tx-ro") },
			})
			var pgErr *pgconn.PgError
			require.ErrorAs(t, err, &pgErr)
			assert.Equal(t, pgerrcode.ReadOnlySQLTransaction, pgErr.Code)
		})
	})
}
