// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import "context"

// JobTransactionCallback is a side-effect hook invoked around every entry of a
// unit and once per unit before the surrounding transaction commits.
//
// Callbacks are shared across units; anything that must survive from one
// entry to the next belongs in the UnitContext (see UnitContext.State).
// A returned error aborts the unit.
type JobTransactionCallback interface {
	// CallbackID is a stable identifier used in diagnostics.
	CallbackID() string

	PreUpdate(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error
	PostUpdate(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error
	PreRemove(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error
	PostRemove(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error

	// PreCommit runs once after the last entry of the unit.
	PreCommit(ctx context.Context, uc *UnitContext) error
}

// NopCallback implements every phase as a no-op. Embed it and override the
// phases a callback cares about.
type NopCallback struct{}

func (NopCallback) PreUpdate(context.Context, *UnitContext, *JobEntry, any) error  { return nil }
func (NopCallback) PostUpdate(context.Context, *UnitContext, *JobEntry, any) error { return nil }
func (NopCallback) PreRemove(context.Context, *UnitContext, *JobEntry, any) error  { return nil }
func (NopCallback) PostRemove(context.Context, *UnitContext, *JobEntry, any) error { return nil }
func (NopCallback) PreCommit(context.Context, *UnitContext) error                  { return nil }

// UnitContext carries the processing state of one transaction job unit.
// It is owned by a single goroutine and must not be shared between units.
type UnitContext struct {
	// Session is the target persistence context of the unit.
	Session Session
	// UnitName identifies the unit in diagnostics.
	UnitName string

	callbacks []JobTransactionCallback
	processed int
	lastType  EntityType
	hasLast   bool
	state     map[string]any
}

// LastType returns the type of the previously processed entry, if any.
func (uc *UnitContext) LastType() (EntityType, bool) {
	return uc.lastType, uc.hasLast
}

// Processed returns how many entries have completed so far.
func (uc *UnitContext) Processed() int {
	return uc.processed
}

// State returns the per-unit state stored under key, creating it with init on
// first use. Callbacks use it for accumulators and trackers.
func (uc *UnitContext) State(key string, init func() any) any {
	if uc.state == nil {
		uc.state = make(map[string]any)
	}
	v, ok := uc.state[key]
	if !ok {
		v = init()
		uc.state[key] = v
	}
	return v
}

// typeTracker remembers the entity type of the previous entry seen by one callback.
type typeTracker struct {
	last    EntityType
	started bool
}

// changed records t and reports whether it differs from the previous type.
// The first entry of a unit counts as a change.
func (tt *typeTracker) changed(t EntityType) bool {
	if tt.started && tt.last == t {
		return false
	}
	tt.last = t
	tt.started = true
	return true
}

func trackerFor(uc *UnitContext, key string) *typeTracker {
	return uc.State(key, func() any { return &typeTracker{} }).(*typeTracker)
}
