// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import "context"

// IndexType names a search index (e.g. "product", "category").
type IndexType string

// IndexOperation is the invalidation kind queued for a search index.
type IndexOperation string

const (
	IndexOpUpdate IndexOperation = "UPDATE"
	IndexOpDelete IndexOperation = "DELETE"
)

// IndexNotification asks the search indexer to refresh or drop one object.
type IndexNotification struct {
	IndexType   IndexType
	Operation   IndexOperation
	AffectedUID int64
	EntityType  EntityType
	GUID        string
}

// IndexNotificationQueue stores index invalidation records, normally inside
// the unit's transaction so that they commit or roll back with it.
type IndexNotificationQueue interface {
	Enqueue(ctx context.Context, sess Session, n IndexNotification) error
}

// IndexNotificationCallbackID identifies IndexNotificationCallback in diagnostics.
const IndexNotificationCallbackID = "index-notification"

// IndexNotificationCallback queues search index invalidations for updated and
// removed entities whose type maps to an index. Unmapped types, missing
// targets and targets without a numeric id are skipped.
type IndexNotificationCallback struct {
	NopCallback
	Queue      IndexNotificationQueue
	IndexTypes map[EntityType]IndexType
}

// NewIndexNotificationCallback creates the callback for the given type mapping.
func NewIndexNotificationCallback(queue IndexNotificationQueue, indexTypes map[EntityType]IndexType) *IndexNotificationCallback {
	return &IndexNotificationCallback{Queue: queue, IndexTypes: indexTypes}
}

func (c *IndexNotificationCallback) CallbackID() string {
	return IndexNotificationCallbackID
}

func (c *IndexNotificationCallback) PostUpdate(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	return c.notify(ctx, uc, entry, target, IndexOpUpdate)
}

func (c *IndexNotificationCallback) PostRemove(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	return c.notify(ctx, uc, entry, target, IndexOpDelete)
}

func (c *IndexNotificationCallback) notify(ctx context.Context, uc *UnitContext, entry *JobEntry, target any, op IndexOperation) error {
	indexType, ok := c.IndexTypes[entry.Type]
	if !ok || c.Queue == nil {
		return nil
	}
	ident, ok := target.(Identified)
	if !ok || isNil(target) {
		return nil
	}
	uid := ident.UIDPK()
	if uid == 0 {
		return nil
	}
	return c.Queue.Enqueue(ctx, uc.Session, IndexNotification{
		IndexType:   indexType,
		Operation:   op,
		AffectedUID: uid,
		EntityType:  entry.Type,
		GUID:        entry.GUID,
	})
}
