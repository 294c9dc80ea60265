// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package sqlitetarget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mobiletoly/go-objsync/objsync"
)

// RunnerConfig holds the retry policy of a Runner.
type RunnerConfig struct {
	MaxAttempts int           // Whole-unit attempts while the database is busy (default: 1)
	Backoff     time.Duration // Wait before attempt n is n-1 times Backoff
}

// Runner applies transaction job units, each in its own SQLite transaction.
type Runner struct {
	db      *sql.DB
	service *objsync.SyncService
	config  RunnerConfig
	logger  *slog.Logger
}

// NewRunner creates a runner applying units with service.
func NewRunner(db *sql.DB, service *objsync.SyncService, config RunnerConfig, logger *slog.Logger) (*Runner, error) {
	if db == nil || service == nil {
		return nil, fmt.Errorf("%w: runner requires a database and a sync service", objsync.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Runner{db: db, service: service, config: config, logger: logger}, nil
}

// IsRetryable reports whether err means the database was busy or locked.
func IsRetryable(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// Apply processes unit in one transaction with deferred foreign keys and
// commits it. On failure nothing of the unit is kept.
func (r *Runner) Apply(ctx context.Context, unit *objsync.TransactionJobUnit) error {
	var err error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err = r.applyOnce(ctx, unit)
		if err == nil || !IsRetryable(err) || attempt == r.config.MaxAttempts {
			return err
		}
		r.logger.Warn("Database busy, applying unit again", "attempt", attempt, "error", err)
		timer := time.NewTimer(time.Duration(attempt) * r.config.Backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

func (r *Runner) applyOnce(ctx context.Context, unit *objsync.TransactionJobUnit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return objsync.RuntimeError("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.ApplyInTx(ctx, tx, unit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return objsync.RuntimeError("commit", err)
	}
	committed = true
	return nil
}

// ApplyInTx processes unit inside a transaction owned by the caller and
// flushes all pending writes. On error the caller must roll back tx.
func (r *Runner) ApplyInTx(ctx context.Context, tx *sql.Tx, unit *objsync.TransactionJobUnit) error {
	if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
		return objsync.RuntimeError("defer foreign keys", err)
	}
	sess := NewSession(tx, r.logger)
	if err := r.service.ProcessTransactionJobUnit(ctx, sess, unit); err != nil {
		return err
	}
	if err := sess.Flush(ctx); err != nil {
		return &objsync.SyncError{
			Item: objsync.SyncErrorResultItem{UnitName: unit.Name},
			Err:  objsync.RuntimeError("flush", err),
		}
	}
	return nil
}
