// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import "context"

// Session is the target-side persistence context of one transaction job unit.
// Target stores hand adapters their own concrete session type; the engine and
// the built-in callbacks only need flush and change-tracking control.
type Session interface {
	// Flush writes pending changes so that later lookups in the same
	// transaction observe them.
	Flush(ctx context.Context) error

	// SetChangeTracking enables or disables fine-grained change computation.
	// Disabling it must not change the persisted result.
	SetChangeTracking(enabled bool)

	// ChangeTracking reports the current change-tracking mode.
	ChangeTracking() bool
}

// DaoAdapter persists one entity type in the target store.
//
// Implementations are registered once at startup and shared by all units, so
// they must not keep per-unit state; everything unit scoped lives in the Session.
type DaoAdapter interface {
	// Type returns the entity type served by this adapter.
	Type() EntityType

	// Get looks up the target entity by guid. A missing entity is (nil, nil).
	Get(ctx context.Context, sess Session, guid string) (any, error)

	// Add persists an entity that did not exist. Implementations may re-check
	// existence and silently do nothing on a duplicate.
	Add(ctx context.Context, sess Session, entity any) error

	// Update persists changes of an existing entity and returns the
	// (possibly re-attached) instance.
	Update(ctx context.Context, sess Session, entity any) (any, error)

	// Remove deletes the entity if present and reports whether anything was deleted.
	// A missing entity is (false, nil).
	Remove(ctx context.Context, sess Session, guid string) (bool, error)

	// CreateBean allocates a new target instance shaped for source.
	CreateBean(source any) (any, error)

	// AssociatedTypes lists the types this type depends on, for ordering.
	AssociatedTypes() []EntityType
}

// AssociatedDaoAdapter is implemented by adapters of entities whose identity is
// a derived or composite key (coupons, product-category links, ...).
type AssociatedDaoAdapter interface {
	DaoAdapter

	// AssociatedGUIDs returns the guids of this adapter's entities that depend
	// on the given owner, in this adapter's key space.
	AssociatedGUIDs(ctx context.Context, sess Session, ownerType EntityType, ownerGUID string) ([]string, error)
}
