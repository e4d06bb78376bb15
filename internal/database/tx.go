package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// TxRunner runs units of work in the strictest isolation the database offers.
// On postgres that is SERIALIZABLE with bounded lock waits; SQLite
// transactions are serializable already.
type TxRunner struct {
	DB          *bun.DB
	LockTimeout time.Duration
	TxTimeout   time.Duration
}

func NewTxRunner(db *bun.DB, lockTimeout, txTimeout time.Duration) *TxRunner {
	return &TxRunner{DB: db, LockTimeout: lockTimeout, TxTimeout: txTimeout}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	if r.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.TxTimeout)
		defer cancel()
	}

	pg := IsPostgres(r.DB)
	var opts *sql.TxOptions
	if pg {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	return r.DB.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		if pg {
			if err := r.setLocalTimeouts(ctx, tx); err != nil {
				return err
			}
		}
		return fn(ctx, tx)
	})
}

func (r *TxRunner) setLocalTimeouts(ctx context.Context, tx bun.Tx) error {
	if r.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	if r.TxTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", r.TxTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	return nil
}
