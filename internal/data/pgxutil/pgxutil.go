// Package pgxutil runs repository work on native pgx connections borrowed from the
// database/sql pool.
package pgxutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	apperrors "github.com/target/sarbatch/internal/errors"
)

// retryDelay is the pause before re-running a transaction Postgres aborted.
const retryDelay = 10 * time.Millisecond

// TxConfig describes one transaction.
type TxConfig struct {
	IsoLevel   pgx.TxIsoLevel
	AccessMode pgx.TxAccessMode
	// Attempts bounds how often Fn runs when Postgres aborts the transaction with a
	// serialization failure or deadlock. Zero means a single attempt. Fn must be safe to rerun.
	Attempts uint
	Fn       func(pgx.Tx) error
}

// WithPgxConn borrows a connection from db and runs fn on its underlying *pgx.Conn.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}
		return fn(std.Conn())
	})
}

// WithPgxTx runs cfg.Fn inside a transaction, committing when it returns nil. Aborted
// transactions are retried up to cfg.Attempts times; other errors are returned at once.
func WithPgxTx(ctx context.Context, db *sql.DB, cfg TxConfig) error {
	return retry.Do(
		func() error {
			err := WithPgxConn(ctx, db, func(conn *pgx.Conn) error { return runTx(ctx, conn, cfg) })
			if err != nil && !Retryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(max(cfg.Attempts, 1)),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
}

func runTx(ctx context.Context, conn *pgx.Conn, cfg TxConfig) error {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: cfg.IsoLevel, AccessMode: cfg.AccessMode})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// Rollback after Commit returns ErrTxClosed.
		_ = tx.Rollback(ctx)
	}()

	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Retryable reports whether err is a serialization failure or deadlock, after which the
// whole transaction can be run again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.IsRetryable(apperrors.MapDBError(err))
}
