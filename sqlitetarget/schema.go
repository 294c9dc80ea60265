// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package sqlitetarget

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver used by this package.
const DriverName = "sqlite3"

// Open opens a SQLite database and initializes the objsync tables.
// In-memory databases are limited to one connection so that every
// transaction sees the same database.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := InitSchema(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// isMemoryDSN reports whether dsn names an in-memory database, either as
// ":memory:" (also inside a file: URI) or with mode=memory.
func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// InitSchema enables foreign keys and creates the objsync tables if they don't exist.
func InitSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS objsync_sequences (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO objsync_sequences (name, value) VALUES ('document_uid', 0)`,

		`CREATE TABLE IF NOT EXISTS objsync_documents (
			entity_type TEXT    NOT NULL,
			guid        TEXT    NOT NULL,
			uid         INTEGER NOT NULL UNIQUE,
			payload     TEXT    NOT NULL, -- JSON object of document fields
			updated_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (entity_type, guid)
		)`,

		`CREATE TABLE IF NOT EXISTS objsync_index_notifications (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			index_type   TEXT    NOT NULL,
			operation    TEXT    NOT NULL CHECK (operation IN ('UPDATE','DELETE')),
			affected_uid INTEGER NOT NULL,
			entity_type  TEXT    NOT NULL,
			guid         TEXT    NOT NULL,
			created_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS objsync_price_notifications (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			price_list_guid TEXT NOT NULL,
			object_type     TEXT NOT NULL,
			object_guid     TEXT NOT NULL,
			created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS objsync_owner_updates (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_type TEXT    NOT NULL,
			owner_uid  INTEGER NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	for i, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("objsync sqlite migration %d failed: %w", i+1, err)
		}
	}
	logger.Debug("Objsync sqlite schema initialized", "statements", len(tables))
	return nil
}
