// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package sqlitetarget is the SQLite target store. It mirrors pgtarget on
// database/sql and github.com/mattn/go-sqlite3.
package sqlitetarget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mobiletoly/go-objsync/internal/docstore"
	"github.com/mobiletoly/go-objsync/objsync"
)

const (
	stmtUpsertDocument = `
		INSERT INTO objsync_documents (entity_type, guid, uid, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_type, guid)
		DO UPDATE SET uid = excluded.uid, payload = excluded.payload,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`
	stmtDeleteDocument = `DELETE FROM objsync_documents WHERE entity_type = ? AND guid = ?`
	stmtLoadDocument   = `SELECT uid, payload FROM objsync_documents WHERE entity_type = ? AND guid = ?`
	stmtListGUIDs      = `SELECT guid FROM objsync_documents WHERE entity_type = ? ORDER BY guid`
	stmtNextUID        = `UPDATE objsync_sequences SET value = value + 1 WHERE name = 'document_uid' RETURNING value`
)

// Session is the persistence context of one unit inside a SQLite transaction.
type Session struct {
	tx      *sql.Tx
	buf     *docstore.Buffer
	logger  *slog.Logger
	flushes int
}

var _ objsync.Session = (*Session)(nil)

// NewSession creates a session on tx.
func NewSession(tx *sql.Tx, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{tx: tx, buf: docstore.NewBuffer(), logger: logger}
}

// Tx returns the transaction the session writes to.
func (s *Session) Tx() *sql.Tx {
	return s.tx
}

// Buffer implements docstore.Backend.
func (s *Session) Buffer() *docstore.Buffer {
	return s.buf
}

// Flushes returns how many non-empty flushes the session performed.
func (s *Session) Flushes() int {
	return s.flushes
}

// Flush writes all pending changes in order with two prepared statements.
func (s *Session) Flush(ctx context.Context) error {
	if s.buf.Len() == 0 {
		return nil
	}
	ops := s.buf.Drain()
	s.flushes++

	upsert, err := s.tx.PrepareContext(ctx, stmtUpsertDocument)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()
	del, err := s.tx.PrepareContext(ctx, stmtDeleteDocument)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()

	for _, op := range ops {
		switch op.Kind {
		case docstore.OpUpsert:
			_, err = upsert.ExecContext(ctx, op.Key.Type, op.Key.GUID, op.UID, string(op.Payload))
		case docstore.OpDelete:
			_, err = del.ExecContext(ctx, op.Key.Type, op.Key.GUID)
		}
		if err != nil {
			return fmt.Errorf("flush %s guid=%s: %w", op.Key.Type, op.Key.GUID, err)
		}
	}

	s.logger.Debug("Session flushed", "writes", len(ops))
	return nil
}

// SetChangeTracking implements objsync.Session.
func (s *Session) SetChangeTracking(enabled bool) {
	s.buf.SetTracking(enabled)
}

// ChangeTracking implements objsync.Session.
func (s *Session) ChangeTracking() bool {
	return s.buf.Tracking()
}

// LoadDocument implements docstore.Backend.
func (s *Session) LoadDocument(ctx context.Context, k docstore.Key) (int64, []byte, bool, error) {
	var (
		uid     int64
		payload string
	)
	err := s.tx.QueryRowContext(ctx, stmtLoadDocument, k.Type, k.GUID).Scan(&uid, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return uid, []byte(payload), true, nil
}

// NextUID implements docstore.Backend.
func (s *Session) NextUID(ctx context.Context) (int64, error) {
	var uid int64
	if err := s.tx.QueryRowContext(ctx, stmtNextUID).Scan(&uid); err != nil {
		return 0, err
	}
	return uid, nil
}

// ListGUIDs implements docstore.Backend.
func (s *Session) ListGUIDs(ctx context.Context, entityType string) ([]string, error) {
	rows, err := s.tx.QueryContext(ctx, stmtListGUIDs, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, err
		}
		out = append(out, guid)
	}
	return out, rows.Err()
}

func sessionOf(sess objsync.Session) (*Session, error) {
	s, ok := sess.(*Session)
	if !ok {
		return nil, fmt.Errorf("%w: session %T is not a sqlite session", objsync.ErrConfiguration, sess)
	}
	return s, nil
}
