// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package sqlitetarget

import (
	"context"

	"github.com/mobiletoly/go-objsync/objsync"
)

// Sinks writes the output of the built-in callbacks to the objsync tables,
// inside the transaction of the unit.
type Sinks struct{}

var (
	_ objsync.IndexNotificationQueue = Sinks{}
	_ objsync.PriceChangeNotifier    = Sinks{}
	_ objsync.OwnerBatchUpdater      = Sinks{}
)

// HookSinks returns Sinks wired into every hook sink slot.
func HookSinks() objsync.HookSinks {
	return objsync.HookSinks{IndexQueue: Sinks{}, PriceNotifier: Sinks{}, OwnerUpdater: Sinks{}}
}

// Enqueue implements objsync.IndexNotificationQueue.
func (Sinks) Enqueue(ctx context.Context, sess objsync.Session, n objsync.IndexNotification) error {
	s, err := sessionOf(sess)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO objsync_index_notifications (index_type, operation, affected_uid, entity_type, guid)
		VALUES (?, ?, ?, ?, ?)`,
		string(n.IndexType), string(n.Operation), n.AffectedUID, string(n.EntityType), n.GUID)
	return objsync.RuntimeError("enqueue index notification", err)
}

// NotifyPriceChanged implements objsync.PriceChangeNotifier.
func (Sinks) NotifyPriceChanged(ctx context.Context, sess objsync.Session, key objsync.PriceChangeKey) error {
	s, err := sessionOf(sess)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO objsync_price_notifications (price_list_guid, object_type, object_guid)
		VALUES (?, ?, ?)`,
		key.PriceListGUID, key.ObjectType, key.ObjectGUID)
	return objsync.RuntimeError("notify price change", err)
}

// UpdateOwners implements objsync.OwnerBatchUpdater. Pending writes are
// flushed first; each owner is touched and logged once.
func (Sinks) UpdateOwners(ctx context.Context, sess objsync.Session, ownerType objsync.EntityType, uids []int64) error {
	s, err := sessionOf(sess)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}
	if err := s.Flush(ctx); err != nil {
		return objsync.RuntimeError("flush", err)
	}

	touch, err := s.tx.PrepareContext(ctx, `
		UPDATE objsync_documents SET updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE entity_type = ? AND uid = ?`)
	if err != nil {
		return objsync.RuntimeError("prepare owner touch", err)
	}
	defer touch.Close()
	record, err := s.tx.PrepareContext(ctx, `INSERT INTO objsync_owner_updates (owner_type, owner_uid) VALUES (?, ?)`)
	if err != nil {
		return objsync.RuntimeError("prepare owner log", err)
	}
	defer record.Close()

	for _, uid := range uids {
		if _, err := touch.ExecContext(ctx, string(ownerType), uid); err != nil {
			return objsync.RuntimeError("touch owners", err)
		}
		if _, err := record.ExecContext(ctx, string(ownerType), uid); err != nil {
			return objsync.RuntimeError("record owner updates", err)
		}
	}
	return nil
}
