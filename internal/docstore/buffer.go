// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package docstore holds the store-neutral parts of the bundled document
// target stores: the write-behind buffer of a session and the generic
// document adapter built on it.
package docstore

import "bytes"

// Key identifies one stored document.
type Key struct {
	Type string
	GUID string
}

// OpKind is the kind of a pending write.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

// Op is one pending write, applied in order on flush.
type Op struct {
	Kind    OpKind
	Key     Key
	UID     int64
	Payload []byte
}

type pendingDoc struct {
	uid     int64
	payload []byte
	deleted bool
}

// Buffer collects the writes of one session until they are flushed and keeps
// enough state to answer lookups of not yet flushed documents.
// It is not safe for concurrent use.
type Buffer struct {
	pending  map[Key]pendingDoc
	loaded   map[Key][]byte
	ops      []Op
	tracking bool
}

// NewBuffer returns an empty buffer with change tracking enabled.
func NewBuffer() *Buffer {
	return &Buffer{
		pending:  make(map[Key]pendingDoc),
		loaded:   make(map[Key][]byte),
		tracking: true,
	}
}

// Lookup reports the pending state of k. known is false when the buffer has
// no pending write for k and the store must be asked.
func (b *Buffer) Lookup(k Key) (uid int64, payload []byte, deleted, known bool) {
	p, ok := b.pending[k]
	if !ok {
		return 0, nil, false, false
	}
	return p.uid, p.payload, p.deleted, true
}

// Remember records the payload of a document as read from the store.
// Only used for change tracking.
func (b *Buffer) Remember(k Key, payload []byte) {
	if b.tracking {
		b.loaded[k] = payload
	}
}

// Unchanged reports whether payload equals the last known state of k. It
// always reports false while change tracking is disabled.
func (b *Buffer) Unchanged(k Key, payload []byte) bool {
	if !b.tracking {
		return false
	}
	if p, ok := b.pending[k]; ok {
		return !p.deleted && bytes.Equal(p.payload, payload)
	}
	prev, ok := b.loaded[k]
	return ok && bytes.Equal(prev, payload)
}

// Put queues an insert-or-update of k.
func (b *Buffer) Put(k Key, uid int64, payload []byte) {
	b.pending[k] = pendingDoc{uid: uid, payload: payload}
	b.ops = append(b.ops, Op{Kind: OpUpsert, Key: k, UID: uid, Payload: payload})
}

// Delete queues a delete of k.
func (b *Buffer) Delete(k Key) {
	b.pending[k] = pendingDoc{deleted: true}
	delete(b.loaded, k)
	b.ops = append(b.ops, Op{Kind: OpDelete, Key: k})
}

// Len returns the number of queued writes.
func (b *Buffer) Len() int {
	return len(b.ops)
}

// Drain returns the queued writes and forgets them. Flushed documents become
// the new known state for change tracking.
func (b *Buffer) Drain() []Op {
	ops := b.ops
	for k, p := range b.pending {
		if !p.deleted && b.tracking {
			b.loaded[k] = p.payload
		}
	}
	b.ops = nil
	b.pending = make(map[Key]pendingDoc)
	return ops
}

// SetTracking switches change tracking. Known states are dropped when it is turned off.
func (b *Buffer) SetTracking(enabled bool) {
	if !enabled {
		clear(b.loaded)
	}
	b.tracking = enabled
}

// Tracking reports whether change tracking is enabled.
func (b *Buffer) Tracking() bool {
	return b.tracking
}
