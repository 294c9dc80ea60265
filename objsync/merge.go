// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"fmt"
	"maps"
	"reflect"
	"sync"
)

// MergeEngine combines the field state of a source entity onto a target instance.
type MergeEngine interface {
	Merge(source, target any) (any, error)
}

// MergeFunc adapts a function to MergeEngine.
type MergeFunc func(source, target any) (any, error)

func (f MergeFunc) Merge(source, target any) (any, error) {
	return f(source, target)
}

type mergeRuleKey struct {
	source reflect.Type
	target reflect.Type
}

// RuleMergeEngine dispatches to a merge rule registered for the
// (source type, target type) pair. Rules are normally registered at startup.
type RuleMergeEngine struct {
	mu    sync.RWMutex
	rules map[mergeRuleKey]MergeFunc
}

// NewRuleMergeEngine returns an engine that already knows how to merge documents.
func NewRuleMergeEngine() *RuleMergeEngine {
	e := &RuleMergeEngine{rules: make(map[mergeRuleKey]MergeFunc)}
	e.Register((*Document)(nil), (*Document)(nil), MergeDocuments)
	return e
}

// Register installs fn for merging values shaped like source onto values
// shaped like target. Only the dynamic types of the samples matter.
func (e *RuleMergeEngine) Register(source, target any, fn MergeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[mergeRuleKey{reflect.TypeOf(source), reflect.TypeOf(target)}] = fn
}

// Merge implements MergeEngine.
func (e *RuleMergeEngine) Merge(source, target any) (any, error) {
	e.mu.RLock()
	fn, ok := e.rules[mergeRuleKey{reflect.TypeOf(source), reflect.TypeOf(target)}]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %T -> %T", ErrNoMergeRule, source, target)
	}
	return fn(source, target)
}

// MergeDocuments copies the source document fields onto the target document.
// The target keeps its identity (type, guid and UID); type and guid are taken
// from the source only while the target has none. Fields missing in the
// source are dropped.
func MergeDocuments(source, target any) (any, error) {
	src, ok := source.(*Document)
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: source is %T, want *Document", ErrNoMergeRule, source)
	}
	dst, ok := target.(*Document)
	if !ok || dst == nil {
		return nil, fmt.Errorf("%w: target is %T, want *Document", ErrNoMergeRule, target)
	}
	if dst.Type == "" {
		dst.Type = src.Type
	}
	if dst.GUID == "" {
		dst.GUID = src.GUID
	}
	dst.Fields = maps.Clone(src.Fields)
	if dst.Fields == nil {
		dst.Fields = map[string]any{}
	}
	return dst, nil
}
