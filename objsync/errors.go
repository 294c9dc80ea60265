// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"errors"
	"fmt"
)

// Error kinds. Configuration errors are always fatal to a unit and are never worth retrying.
var (
	ErrConfiguration    = errors.New("sync configuration error")
	ErrUnregisteredType = fmt.Errorf("%w: no dao adapter registered for type", ErrConfiguration)
	ErrNoMergeRule      = fmt.Errorf("%w: no merge rule", ErrConfiguration)
	ErrUnresolvedGUID   = fmt.Errorf("%w: unresolvable guid", ErrConfiguration)
	ErrInvalidEntry     = fmt.Errorf("%w: invalid job entry", ErrConfiguration)

	// ErrSyncRuntime is the single kind adapters use for persistence failures.
	ErrSyncRuntime = errors.New("sync runtime error")

	// ErrNothingRemoved is reported when strict remove mode finds nothing to delete.
	ErrNothingRemoved = fmt.Errorf("%w: nothing removed", ErrSyncRuntime)
)

// RuntimeError wraps err as an ErrSyncRuntime failure. A nil err stays nil.
func RuntimeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSyncRuntime) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSyncRuntime, op, err)
}

// CallbackError is returned when a registered hook fails.
type CallbackError struct {
	CallbackID string
	Phase      string
	Err        error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %s failed in %s: %v", e.CallbackID, e.Phase, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// SyncError is the rollback signal returned when a unit cannot be applied.
// The caller must roll back its surrounding transaction.
type SyncError struct {
	Item SyncErrorResultItem
	Err  error
}

func (e *SyncError) Error() string {
	if e.Item.GUID == "" && e.Item.Type == "" {
		return fmt.Sprintf("sync of unit %s failed: %v", e.Item.UnitName, e.Err)
	}
	return fmt.Sprintf("sync of unit %s failed at %s %s guid=%s: %v",
		e.Item.UnitName, e.Item.Command, e.Item.Type, e.Item.GUID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// AsSyncError extracts the rollback signal from err.
func AsSyncError(err error) (*SyncError, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
