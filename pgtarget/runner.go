// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package pgtarget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobiletoly/go-objsync/objsync"
)

// RunnerConfig holds the retry policy of a Runner.
type RunnerConfig struct {
	MaxAttempts int           // Whole-unit attempts on retryable failures (default: 1)
	Backoff     time.Duration // Wait before attempt n is n-1 times Backoff
}

// Runner applies transaction job units, each in its own PostgreSQL
// transaction. A unit that fails is rolled back as a whole.
type Runner struct {
	pool    *pgxpool.Pool
	service *objsync.SyncService
	config  RunnerConfig
	logger  *slog.Logger
}

// NewRunner creates a runner applying units with service.
func NewRunner(pool *pgxpool.Pool, service *objsync.SyncService, config RunnerConfig, logger *slog.Logger) (*Runner, error) {
	if pool == nil || service == nil {
		return nil, fmt.Errorf("%w: runner requires a pool and a sync service", objsync.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Runner{pool: pool, service: service, config: config, logger: logger}, nil
}

// Apply processes unit in a REPEATABLE READ transaction with deferred
// constraints and commits it. Retryable PostgreSQL failures restart the unit
// from its first entry, up to MaxAttempts times.
func (r *Runner) Apply(ctx context.Context, unit *objsync.TransactionJobUnit) error {
	var err error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
			return r.ApplyInTx(ctx, tx, unit)
		})
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == r.config.MaxAttempts {
			break
		}
		r.logger.Warn("Retryable failure, applying unit again",
			"unit", unitName(unit), "attempt", attempt, "error", err)
		if sleepErr := sleepWithContext(ctx, time.Duration(attempt)*r.config.Backoff); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}
	return err
}

// ApplyInTx processes unit inside a transaction owned by the caller and
// flushes all pending writes. On error the caller must roll back tx.
func (r *Runner) ApplyInTx(ctx context.Context, tx pgx.Tx, unit *objsync.TransactionJobUnit) error {
	if _, err := tx.Exec(ctx, "SET CONSTRAINTS ALL DEFERRED"); err != nil {
		return objsync.RuntimeError("defer constraints", err)
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

func unitName(unit *objsync.TransactionJobUnit) string {
	if unit == nil {
		return ""
	}
	return unit.Name
}
