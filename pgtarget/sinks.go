// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package pgtarget

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
	_, err = s.tx.Exec(ctx, `
		INSERT INTO objsync.index_notifications (index_type, operation, affected_uid, entity_type, guid)
		VALUES ($1, $2, $3, $4, $5)`,
		string(n.IndexType), string(n.Operation), n.AffectedUID, string(n.EntityType), n.GUID)
	return objsync.RuntimeError("enqueue index notification", err)
}

// NotifyPriceChanged implements objsync.PriceChangeNotifier.
func (Sinks) NotifyPriceChanged(ctx context.Context, sess objsync.Session, key objsync.PriceChangeKey) error {
	s, err := sessionOf(sess)
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, `
		INSERT INTO objsync.price_notifications (price_list_guid, object_type, object_guid)
		VALUES ($1, $2, $3)`,
		key.PriceListGUID, key.ObjectType, key.ObjectGUID)
	return objsync.RuntimeError("notify price change", err)
}

// UpdateOwners implements objsync.OwnerBatchUpdater. Pending writes are
// flushed first, then all owners are touched with one statement.
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
	if _, err := s.tx.Exec(ctx, `
		UPDATE objsync.documents SET updated_at = now()
		WHERE entity_type = $1 AND uid = ANY($2::bigint[])`,
		string(ownerType), uids); err != nil {
		return objsync.RuntimeError("touch owners", err)
	}
	_, err = s.tx.Exec(ctx, `
		INSERT INTO objsync.owner_updates (owner_type, owner_uid)
		SELECT $1, u FROM unnest($2::bigint[]) AS u`,
		string(ownerType), uids)
	return objsync.RuntimeError("record owner updates", err)
}
