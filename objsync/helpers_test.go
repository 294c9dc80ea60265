// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"errors"
	"fmt"
)

// eventLog records adapter and callback calls in order.
type eventLog struct {
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	if l != nil {
		l.events = append(l.events, fmt.Sprintf(format, args...))
	}
}

// memSession is an in-memory Session.
type memSession struct {
	flushes  int
	tracking bool
	toggles  []bool
	flushErr error
}

func newMemSession() *memSession {
	return &memSession{tracking: true}
}

func (s *memSession) Flush(context.Context) error {
	s.flushes++
	return s.flushErr
}

func (s *memSession) SetChangeTracking(enabled bool) {
	s.tracking = enabled
	s.toggles = append(s.toggles, enabled)
}

func (s *memSession) ChangeTracking() bool {
	return s.tracking
}

// memAdapter stores documents of one type in a map.
type memAdapter struct {
	typ      EntityType
	deps     []EntityType
	rows     map[string]*Document
	nextUID  int64
	log      *eventLog
	failOn   map[string]error // "op:guid" -> error
	calls    map[string]int
	typedNil bool // Get returns (*Document)(nil) for missing rows
}

func newMemAdapter(t EntityType, log *eventLog, deps ...EntityType) *memAdapter {
	return &memAdapter{
		typ:    t,
		deps:   deps,
		rows:   make(map[string]*Document),
		log:    log,
		failOn: make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (a *memAdapter) fail(op, guid string) error {
	a.calls[op]++
	a.log.add("%s:%s:%s", op, a.typ, guid)
	return a.failOn[op+":"+guid]
}

func (a *memAdapter) Type() EntityType { return a.typ }

func (a *memAdapter) Get(_ context.Context, _ Session, guid string) (any, error) {
	if err := a.fail("get", guid); err != nil {
		return nil, err
	}
	doc, ok := a.rows[guid]
	if !ok {
		if a.typedNil {
			return (*Document)(nil), nil
		}
		return nil, nil
	}
	return doc.Clone(), nil
}

func (a *memAdapter) Add(_ context.Context, _ Session, entity any) error {
	doc := entity.(*Document)
	if err := a.fail("add", doc.GUID); err != nil {
		return err
	}
	if _, ok := a.rows[doc.GUID]; ok {
		return nil
	}
	a.nextUID++
	doc.UID = a.nextUID
	a.rows[doc.GUID] = doc.Clone()
	return nil
}

func (a *memAdapter) Update(_ context.Context, _ Session, entity any) (any, error) {
	doc := entity.(*Document)
	if err := a.fail("update", doc.GUID); err != nil {
		return nil, err
	}
	if _, ok := a.rows[doc.GUID]; !ok {
		return nil, errors.New("update of unknown entity")
	}
	a.rows[doc.GUID] = doc.Clone()
	return doc, nil
}

func (a *memAdapter) Remove(_ context.Context, _ Session, guid string) (bool, error) {
	if err := a.fail("remove", guid); err != nil {
		return false, err
	}
	if _, ok := a.rows[guid]; !ok {
		return false, nil
	}
	delete(a.rows, guid)
	return true, nil
}

func (a *memAdapter) CreateBean(source any) (any, error) {
	a.calls["createBean"]++
	src, ok := source.(*Document)
	if !ok {
		return nil, fmt.Errorf("unexpected source %T", source)
	}
	a.log.add("createBean:%s:%s", a.typ, src.GUID)
	return NewDocument(a.typ, src.GUID), nil
}

func (a *memAdapter) AssociatedTypes() []EntityType { return a.deps }

// recordingCallback logs every phase it sees and can fail on demand.
type recordingCallback struct {
	id      string
	log     *eventLog
	failIn  string
	targets map[string][]any // phase -> targets
}

func newRecordingCallback(id string, log *eventLog) *recordingCallback {
	return &recordingCallback{id: id, log: log, targets: make(map[string][]any)}
}

func (c *recordingCallback) CallbackID() string { return c.id }

func (c *recordingCallback) record(phase string, target any) error {
	c.log.add("%s(%s)", phase, c.id)
	c.targets[phase] = append(c.targets[phase], target)
	if c.failIn == phase {
		return fmt.Errorf("%s failed on purpose", c.id)
	}
	return nil
}

func (c *recordingCallback) PreUpdate(_ context.Context, _ *UnitContext, _ *JobEntry, target any) error {
	return c.record(PhasePreUpdate, target)
}

func (c *recordingCallback) PostUpdate(_ context.Context, _ *UnitContext, _ *JobEntry, target any) error {
	return c.record(PhasePostUpdate, target)
}

func (c *recordingCallback) PreRemove(_ context.Context, _ *UnitContext, _ *JobEntry, target any) error {
	return c.record(PhasePreRemove, target)
}

func (c *recordingCallback) PostRemove(_ context.Context, _ *UnitContext, _ *JobEntry, target any) error {
	return c.record(PhasePostRemove, target)
}

func (c *recordingCallback) PreCommit(context.Context, *UnitContext) error {
	return c.record(PhasePreCommit, nil)
}

func productDoc(guid, name string) *Document {
	return NewDocument("Product", guid).Set("name", name)
}
