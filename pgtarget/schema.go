// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package pgtarget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates the objsync schema and its tables if they don't exist.
func InitSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return InitSchemaInTx(ctx, tx, logger)
	})
}

// InitSchemaInTx creates the objsync tables within an existing transaction.
func InitSchemaInTx(ctx context.Context, tx pgx.Tx, logger *slog.Logger) error {
	migrations := []string{
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS objsync`,

		// Target-side ids, allocated when a document is added
		/*language=postgresql*/ `CREATE SEQUENCE IF NOT EXISTS objsync.document_uid_seq`,

		// 1) Synchronized documents, one row per (type, guid)
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS objsync.documents (
			entity_type TEXT        NOT NULL,
			guid        TEXT        NOT NULL,
			uid         BIGINT      NOT NULL UNIQUE,
			payload     JSON        NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (entity_type, guid)
		)`,

		// 2) Search index invalidations, consumed by the indexer
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS objsync.index_notifications (
			id           BIGSERIAL PRIMARY KEY,
			index_type   TEXT        NOT NULL,
			operation    TEXT        NOT NULL CHECK (operation IN ('UPDATE','DELETE')),
			affected_uid BIGINT      NOT NULL,
			entity_type  TEXT        NOT NULL,
			guid         TEXT        NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		// 3) Price change events, one per distinct key and unit
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS objsync.price_notifications (
			id              BIGSERIAL PRIMARY KEY,
			price_list_guid TEXT        NOT NULL,
			object_type     TEXT        NOT NULL,
			object_guid     TEXT        NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		// 4) Owner touch log written by batched owner updates
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS objsync.owner_updates (
			id          BIGSERIAL PRIMARY KEY,
			owner_type  TEXT        NOT NULL,
			owner_uid   BIGINT      NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS in_created_idx ON objsync.index_notifications(created_at, id)`,
		`CREATE INDEX IF NOT EXISTS pn_created_idx ON objsync.price_notifications(created_at, id)`,
	}

	for i, migration := range migrations {
		logger.Debug("Running objsync migration", "step", i+1, "total", len(migrations))
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("objsync migration %d failed: %w", i+1, err)
		}
	}
	logger.Info("Objsync schema initialized successfully", "migrations", len(migrations))
	return nil
}
