// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package objsync applies transaction job units, ordered batches of UPDATE and
// REMOVE entries, to a target store through per-type dao adapters, with a
// chain of callbacks around every entry and before commit.
package objsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// ServiceConfig holds configuration for the sync service
type ServiceConfig struct {
	Registry  *Registry                // Entity type -> adapter map (required)
	Merger    MergeEngine              // Merge engine (default: NewRuleMergeEngine)
	Callbacks []JobTransactionCallback // Initial hook chain, fired in order

	// FailOnMissingRemove turns a REMOVE that deletes nothing into a unit
	// failure instead of a logged warning.
	FailOnMissingRemove bool

	StageMetrics    StageMetricsRecorder // Optional per-stage timing sink
	LogStageTimings bool                 // Log stage timings at debug level
}

// SyncService applies transaction job units to the target store.
// It is safe for concurrent use by independent units; entries of one unit are
// always processed sequentially on the caller's goroutine.
type SyncService struct {
	registry *Registry
	merger   MergeEngine
	logger   *slog.Logger
	config   *ServiceConfig

	mu        sync.RWMutex
	callbacks []JobTransactionCallback
}

// NewSyncService creates a new sync service.
func NewSyncService(config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if config == nil || config.Registry == nil {
		return nil, fmt.Errorf("%w: sync service requires a dao adapter registry", ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	merger := config.Merger
	if merger == nil {
		merger = NewRuleMergeEngine()
	}

	s := &SyncService{
		registry: config.Registry,
		merger:   merger,
		logger:   logger,
		config:   config,
	}
	s.SetHookCallbacks(config.Callbacks)

	logger.Debug("Sync service created",
		"types", len(config.Registry.Types()), "callbacks", len(config.Callbacks),
		"fail_on_missing_remove", config.FailOnMissingRemove)
	return s, nil
}

// Registry returns the adapter registry used by the service.
func (s *SyncService) Registry() *Registry {
	return s.registry
}

// SetHookCallbacks replaces the hook chain. Units already in progress keep
// the chain they started with.
func (s *SyncService) SetHookCallbacks(callbacks []JobTransactionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append([]JobTransactionCallback(nil), callbacks...)
}

// AddHookCallback appends a callback to the hook chain.
func (s *SyncService) AddHookCallback(callback JobTransactionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// HookCallbacks returns a copy of the current hook chain.
func (s *SyncService) HookCallbacks() []JobTransactionCallback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]JobTransactionCallback(nil), s.callbacks...)
}

// NewUnitContext starts the processing context of one unit on sess. The
// current hook chain is captured here.
func (s *SyncService) NewUnitContext(sess Session, unitName string) *UnitContext {
	return &UnitContext{
		Session:   sess,
		UnitName:  unitName,
		callbacks: s.HookCallbacks(),
	}
}

// ProcessTransactionJobUnit applies every entry of unit in order and then
// runs the PreCommit phase of the hook chain. It stops at the first failure
// and returns a *SyncError; the caller must then roll back the transaction
// that sess belongs to.
func (s *SyncService) ProcessTransactionJobUnit(ctx context.Context, sess Session, unit *TransactionJobUnit) error {
	if unit == nil {
		return &SyncError{Err: fmt.Errorf("%w: nil transaction job unit", ErrInvalidEntry)}
	}

	start := s.stageStart()
	uc := s.NewUnitContext(sess, unit.Name)

	s.logger.Info("Processing transaction job unit", "unit", unit.Name, "entries", len(unit.Entries))

	for _, entry := range unit.Entries {
		if err := s.ProcessJobEntry(ctx, uc, entry); err != nil {
			s.observeStage(ctx, MetricsOpUnit, MetricsStageUnit, start, uc.processed, true)
			return err
		}
	}

	if err := s.FinishUnit(ctx, uc); err != nil {
		s.observeStage(ctx, MetricsOpUnit, MetricsStageUnit, start, uc.processed, true)
		return err
	}

	s.observeStage(ctx, MetricsOpUnit, MetricsStageUnit, start, uc.processed, false)
	s.logger.Info("Transaction job unit processed", "unit", unit.Name, "entries", uc.processed)
	return nil
}

// ProcessJobEntry applies a single entry within uc. Failures are returned as *SyncError.
func (s *SyncService) ProcessJobEntry(ctx context.Context, uc *UnitContext, entry *JobEntry) error {
	if err := validateEntry(entry); err != nil {
		item := SyncErrorResultItem{UnitName: uc.UnitName}
		if entry != nil {
			item = s.resultItem(uc, entry)
		}
		s.logger.Error("Invalid job entry", "unit", uc.UnitName, "error", err)
		return &SyncError{Item: item, Err: err}
	}

	s.logger.Debug("Processing job entry",
		"unit", uc.UnitName, "type", entry.Type, "guid", entry.GUID, "command", entry.Command)

	var (
		op  string
		err error
	)
	start := s.stageStart()
	switch entry.Command {
	case CmdRemove:
		op = MetricsOpRemove
		err = s.processRemove(ctx, uc, entry)
	default:
		op = MetricsOpUpdate
		err = s.processUpdate(ctx, uc, entry)
	}
	s.observeStage(ctx, op, MetricsStageEntry, start, 1, err != nil)

	if err != nil {
		item := s.resultItem(uc, entry)
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			item.CallbackID = cbErr.CallbackID
		}
		s.logger.Error("Job entry failed, unit will be rolled back",
			"unit", item.UnitName, "type", entry.Type, "guid", entry.GUID,
			"command", entry.Command, "callback", item.CallbackID, "error", err)
		return &SyncError{Item: item, Err: err}
	}

	uc.processed++
	uc.lastType = entry.Type
	uc.hasLast = true
	return nil
}

// FinishUnit runs the PreCommit phase of every callback in order. Call it
// once after the last entry and before committing the transaction.
func (s *SyncService) FinishUnit(ctx context.Context, uc *UnitContext) error {
	start := s.stageStart()
	for _, cb := range uc.callbacks {
		if err := cb.PreCommit(ctx, uc); err != nil {
			cbErr := &CallbackError{CallbackID: cb.CallbackID(), Phase: PhasePreCommit, Err: err}
			s.logger.Error("Pre-commit callback failed, unit will be rolled back",
				"unit", uc.UnitName, "callback", cbErr.CallbackID, "error", err)
			s.observeStage(ctx, MetricsOpUnit, MetricsStagePreCommit, start, len(uc.callbacks), true)
			return &SyncError{
				Item: SyncErrorResultItem{UnitName: uc.UnitName, CallbackID: cbErr.CallbackID},
				Err:  cbErr,
			}
		}
	}
	s.observeStage(ctx, MetricsOpUnit, MetricsStagePreCommit, start, len(uc.callbacks), false)
	return nil
}

func (s *SyncService) processUpdate(ctx context.Context, uc *UnitContext, entry *JobEntry) error {
	adapter, err := s.registry.DaoAdapter(entry.Type)
	if err != nil {
		return err
	}

	target, err := adapter.Get(ctx, uc.Session, entry.GUID)
	if err != nil {
		return adapterError("get", err)
	}
	if isNil(target) {
		target = nil
	}

	if err := s.fire(ctx, uc, PhasePreUpdate, entry, target); err != nil {
		return err
	}

	created := false
	if target == nil {
		target, err = adapter.CreateBean(entry.Source)
		if err != nil {
			return adapterError("create bean", err)
		}
		if isNil(target) {
			return fmt.Errorf("%w: adapter for %s created no bean", ErrConfiguration, entry.Type)
		}
		if doc, ok := target.(*Document); ok {
			doc.Type, doc.GUID = entry.Type, entry.GUID
		}
		created = true
	}

	merged, err := s.merger.Merge(entry.Source, target)
	if err != nil {
		return fmt.Errorf("merge %s guid=%s: %w", entry.Type, entry.GUID, err)
	}

	final := merged
	if created {
		s.logger.Debug("Adding new entity", "unit", uc.UnitName, "type", entry.Type, "guid", entry.GUID)
		if err := adapter.Add(ctx, uc.Session, merged); err != nil {
			return adapterError("add", err)
		}
	} else {
		s.logger.Debug("Updating existing entity", "unit", uc.UnitName, "type", entry.Type, "guid", entry.GUID)
		final, err = adapter.Update(ctx, uc.Session, merged)
		if err != nil {
			return adapterError("update", err)
		}
	}

	return s.fire(ctx, uc, PhasePostUpdate, entry, final)
}

func (s *SyncService) processRemove(ctx context.Context, uc *UnitContext, entry *JobEntry) error {
	adapter, err := s.registry.DaoAdapter(entry.Type)
	if err != nil {
		return err
	}

	// snapshot handed to the remove callbacks, may be nil
	target, err := adapter.Get(ctx, uc.Session, entry.GUID)
	if err != nil {
		return adapterError("get", err)
	}
	if isNil(target) {
		target = nil
	}

	if err := s.fire(ctx, uc, PhasePreRemove, entry, target); err != nil {
		return err
	}

	removed, err := adapter.Remove(ctx, uc.Session, entry.GUID)
	if err != nil {
		return adapterError("remove", err)
	}
	if !removed {
		if s.config.FailOnMissingRemove {
			return fmt.Errorf("%w: %s guid=%s", ErrNothingRemoved, entry.Type, entry.GUID)
		}
		s.logger.Warn("Nothing removed for job entry",
			"unit", uc.UnitName, "type", entry.Type, "guid", entry.GUID)
	}

	return s.fire(ctx, uc, PhasePostRemove, entry, target)
}

// fire invokes one phase on every callback in registration order and stops
// at the first failure.
func (s *SyncService) fire(ctx context.Context, uc *UnitContext, phase string, entry *JobEntry, target any) error {
	for _, cb := range uc.callbacks {
		var err error
		switch phase {
		case PhasePreUpdate:
			err = cb.PreUpdate(ctx, uc, entry, target)
		case PhasePostUpdate:
			err = cb.PostUpdate(ctx, uc, entry, target)
		case PhasePreRemove:
			err = cb.PreRemove(ctx, uc, entry, target)
		case PhasePostRemove:
			err = cb.PostRemove(ctx, uc, entry, target)
		default:
			return fmt.Errorf("unknown callback phase %q", phase)
		}
		if err != nil {
			return &CallbackError{CallbackID: cb.CallbackID(), Phase: phase, Err: err}
		}
	}
	return nil
}

func (s *SyncService) resultItem(uc *UnitContext, entry *JobEntry) SyncErrorResultItem {
	item := newSyncErrorResultItem(entry)
	if item.UnitName == "" {
		item.UnitName = uc.UnitName
	}
	return item
}

// adapterError classifies an adapter failure. Configuration errors keep
// their kind; everything else becomes ErrSyncRuntime.
func adapterError(op string, err error) error {
	if IsConfigurationError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return RuntimeError(op, err)
}

// isNil reports whether v is nil or a typed nil pointer, map, slice or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
