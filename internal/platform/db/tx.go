package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/go-sql-driver/mysql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, so store helpers run in or out of a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type TxFunc func(ctx context.Context, tx DBTX) error

// RunInTx commits when fn returns nil and rolls back otherwise. A panic in fn
// rolls back first and then keeps unwinding. A failed rollback is joined to fn's error.
func RunInTx(ctx context.Context, conn *sql.DB, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("[WARN] rollback after panic: %v", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadOnly runs fn in a read-only transaction so paged reads see one snapshot.
func ReadOnly(ctx context.Context, conn *sql.DB, fn TxFunc) error {
	return RunInTx(ctx, conn, &sql.TxOptions{ReadOnly: true}, fn)
}

// IsDuplicateKey reports MySQL error 1062 anywhere in err's chain, including a
// duplicate that only surfaces at commit.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
