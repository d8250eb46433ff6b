package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run opens a transaction, binds a query set to it with bind, and hands that
// to fn. The transaction commits only when fn returns nil.
func Run[Q any](ctx context.Context, conn *sql.DB, bind func(*sql.Tx) *Q, fn func(q *Q) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err = fn(bind(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
