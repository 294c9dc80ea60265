// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"fmt"
)

// Callback ids of the type-boundary callbacks.
const (
	FlushBoundaryCallbackID  = "flush-boundary"
	ChangeTrackingCallbackID = "change-tracking"
)

// FlushBoundaryCallback flushes the session whenever the entity type changes
// from one entry to the next, so lookups of the new type observe the writes
// of the previous one.
type FlushBoundaryCallback struct {
	NopCallback
}

func (c *FlushBoundaryCallback) CallbackID() string {
	return FlushBoundaryCallbackID
}

func (c *FlushBoundaryCallback) PreUpdate(ctx context.Context, uc *UnitContext, entry *JobEntry, _ any) error {
	return c.boundary(ctx, uc, entry)
}

func (c *FlushBoundaryCallback) PreRemove(ctx context.Context, uc *UnitContext, entry *JobEntry, _ any) error {
	return c.boundary(ctx, uc, entry)
}

func (c *FlushBoundaryCallback) boundary(ctx context.Context, uc *UnitContext, entry *JobEntry) error {
	tt := trackerFor(uc, FlushBoundaryCallbackID)
	first := !tt.started
	if !tt.changed(entry.Type) || first || uc.Session == nil {
		return nil
	}
	if err := uc.Session.Flush(ctx); err != nil {
		return fmt.Errorf("flush before %s: %w", entry.Type, err)
	}
	return nil
}

// ChangeTrackingCallback turns fine-grained change tracking off while entries
// of an exempt type are processed and back on for every other type. Tracking
// is re-enabled at PreCommit.
type ChangeTrackingCallback struct {
	NopCallback
	Exempt map[EntityType]bool
}

// NewChangeTrackingCallback creates the callback for the given exempt types.
func NewChangeTrackingCallback(exempt ...EntityType) *ChangeTrackingCallback {
	m := make(map[EntityType]bool, len(exempt))
	for _, t := range exempt {
		m[t] = true
	}
	return &ChangeTrackingCallback{Exempt: m}
}

func (c *ChangeTrackingCallback) CallbackID() string {
	return ChangeTrackingCallbackID
}

func (c *ChangeTrackingCallback) PreUpdate(_ context.Context, uc *UnitContext, entry *JobEntry, _ any) error {
	c.boundary(uc, entry)
	return nil
}

func (c *ChangeTrackingCallback) PreRemove(_ context.Context, uc *UnitContext, entry *JobEntry, _ any) error {
	c.boundary(uc, entry)
	return nil
}

func (c *ChangeTrackingCallback) boundary(uc *UnitContext, entry *JobEntry) {
	if uc.Session == nil || !trackerFor(uc, ChangeTrackingCallbackID).changed(entry.Type) {
		return
	}
	uc.Session.SetChangeTracking(!c.Exempt[entry.Type])
}

func (c *ChangeTrackingCallback) PreCommit(_ context.Context, uc *UnitContext) error {
	if uc.Session != nil {
		uc.Session.SetChangeTracking(true)
	}
	return nil
}
