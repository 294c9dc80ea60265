// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package pgtarget is the PostgreSQL target store: a write-behind session over
// pgx.Tx, document adapters, notification sinks and a unit runner.
package pgtarget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/mobiletoly/go-objsync/internal/docstore"
	"github.com/mobiletoly/go-objsync/objsync"
)

const flushBatchChunkSize = 128

var errFlushBatchFailed = errors.New("document flush batch failed")

const (
	stmtUpsertDocument = `
		INSERT INTO objsync.documents (entity_type, guid, uid, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_type, guid)
		DO UPDATE SET uid = EXCLUDED.uid, payload = EXCLUDED.payload, updated_at = now()`
	stmtDeleteDocument = `DELETE FROM objsync.documents WHERE entity_type = $1 AND guid = $2`
	stmtLoadDocument   = `SELECT uid, payload FROM objsync.documents WHERE entity_type = $1 AND guid = $2`
	stmtListGUIDs      = `SELECT guid FROM objsync.documents WHERE entity_type = $1 ORDER BY guid`
	stmtNextUID        = `SELECT nextval('objsync.document_uid_seq')`
)

// Session is the persistence context of one unit inside a PostgreSQL
// transaction. Writes are buffered and sent in batches on Flush.
type Session struct {
	tx      pgx.Tx
	buf     *docstore.Buffer
	logger  *slog.Logger
	flushes int
}

var _ objsync.Session = (*Session)(nil)

// NewSession creates a session on tx.
func NewSession(tx pgx.Tx, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{tx: tx, buf: docstore.NewBuffer(), logger: logger}
}

// Tx returns the transaction the session writes to.
func (s *Session) Tx() pgx.Tx {
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

// Flush sends all pending writes to the database in order.
func (s *Session) Flush(ctx context.Context) error {
	if s.buf.Len() == 0 {
		return nil
	}
	ops := s.buf.Drain()
	s.flushes++

	for start := 0; start < len(ops); start += flushBatchChunkSize {
		end := min(start+flushBatchChunkSize, len(ops))

		b := &pgx.Batch{}
		for _, op := range ops[start:end] {
			switch op.Kind {
			case docstore.OpUpsert:
				b.Queue(stmtUpsertDocument, op.Key.Type, op.Key.GUID, op.UID, op.Payload)
			case docstore.OpDelete:
				b.Queue(stmtDeleteDocument, op.Key.Type, op.Key.GUID)
			}
		}

		br := s.tx.SendBatch(ctx, b)
		if err := br.Close(); err != nil {
			return fmt.Errorf("%w: %w", errFlushBatchFailed, err)
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
		payload []byte
	)
	err := s.tx.QueryRow(ctx, stmtLoadDocument, k.Type, k.GUID).Scan(&uid, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return uid, payload, true, nil
}

// NextUID implements docstore.Backend.
func (s *Session) NextUID(ctx context.Context) (int64, error) {
	var uid int64
	if err := s.tx.QueryRow(ctx, stmtNextUID).Scan(&uid); err != nil {
		return 0, err
	}
	return uid, nil
}

// ListGUIDs implements docstore.Backend.
func (s *Session) ListGUIDs(ctx context.Context, entityType string) ([]string, error) {
	rows, err := s.tx.Query(ctx, stmtListGUIDs, entityType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func sessionOf(sess objsync.Session) (*Session, error) {
	s, ok := sess.(*Session)
	if !ok {
		return nil, fmt.Errorf("%w: session %T is not a postgres session", objsync.ErrConfiguration, sess)
	}
	return s, nil
}
