// Package dbx holds the database handle shared by repositories and the
// transaction helpers services use to group several repository calls.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is what the users and artifacts repositories run their SQL on.
// *sql.DB and *sql.Tx both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner starts transactions. *sql.DB satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx runs fn in a transaction. See InTx.
func WithTx(ctx context.Context, db Beginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	_, err := InTx(ctx, db, opts, func(ctx context.Context, tx DBTX) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// InTx runs fn in a transaction and returns its value once the commit
// succeeds. An error from fn, or a panic, rolls the transaction back; a
// failing rollback is joined to fn's error. Panics are rethrown.
//
//	deleted, err := dbx.InTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) ([]*models.Artifact, error) {
//	    return m.Artifacts(tx).DeleteOlderThan(ctx, cutoff)
//	})
func InTx[T any](ctx context.Context, db Beginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) (T, error)) (res T, err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		// after a failed commit the tx is already closed
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback tx: %w", rerr))
		}
	}()

	v, err := fn(ctx, tx)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit tx: %w", err)
	}
	done = true
	return v, nil
}
