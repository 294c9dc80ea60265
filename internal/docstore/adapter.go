// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/mobiletoly/go-objsync/objsync"
)

// Backend is implemented by the sessions of the bundled target stores.
type Backend interface {
	objsync.Session

	// Buffer returns the write-behind buffer of the session.
	Buffer() *Buffer

	// LoadDocument reads a flushed document. found is false when it does not exist.
	LoadDocument(ctx context.Context, k Key) (uid int64, payload []byte, found bool, err error)

	// NextUID allocates a new document uid.
	NextUID(ctx context.Context) (int64, error)

	// ListGUIDs returns the guids of all flushed documents of a type.
	ListGUIDs(ctx context.Context, entityType string) ([]string, error)
}

// Adapter is a DaoAdapter persisting objsync.Document values of one type.
type Adapter struct {
	typ  objsync.EntityType
	deps []objsync.EntityType
}

var _ objsync.DaoAdapter = (*Adapter)(nil)

// NewAdapter creates a document adapter for t that depends on deps.
func NewAdapter(t objsync.EntityType, deps ...objsync.EntityType) *Adapter {
	return &Adapter{typ: t, deps: deps}
}

func backend(sess objsync.Session) (Backend, error) {
	be, ok := sess.(Backend)
	if !ok {
		return nil, fmt.Errorf("%w: session %T is not a document store session", objsync.ErrConfiguration, sess)
	}
	return be, nil
}

func (a *Adapter) Type() objsync.EntityType {
	return a.typ
}

func (a *Adapter) AssociatedTypes() []objsync.EntityType {
	return a.deps
}

func (a *Adapter) key(guid string) Key {
	return Key{Type: string(a.typ), GUID: guid}
}

// Get implements objsync.DaoAdapter.
func (a *Adapter) Get(ctx context.Context, sess objsync.Session, guid string) (any, error) {
	be, err := backend(sess)
	if err != nil {
		return nil, err
	}
	doc, err := a.load(ctx, be, guid)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc, nil
}

func (a *Adapter) load(ctx context.Context, be Backend, guid string) (*objsync.Document, error) {
	k := a.key(guid)
	buf := be.Buffer()

	if uid, payload, deleted, known := buf.Lookup(k); known {
		if deleted {
			return nil, nil
		}
		return decode(a.typ, guid, uid, payload)
	}

	uid, payload, found, err := be.LoadDocument(ctx, k)
	if err != nil {
		return nil, objsync.RuntimeError(fmt.Sprintf("load %s guid=%s", a.typ, guid), err)
	}
	if !found {
		return nil, nil
	}
	doc, err := decode(a.typ, guid, uid, payload)
	if err != nil {
		return nil, err
	}
	canonical, err := doc.MarshalFields()
	if err != nil {
		return nil, objsync.RuntimeError("encode document", err)
	}
	buf.Remember(k, canonical)
	return doc, nil
}

func decode(t objsync.EntityType, guid string, uid int64, payload []byte) (*objsync.Document, error) {
	doc := &objsync.Document{Type: t, GUID: guid, UID: uid}
	if err := doc.UnmarshalFields(payload); err != nil {
		return nil, objsync.RuntimeError(fmt.Sprintf("decode %s guid=%s", t, guid), err)
	}
	return doc, nil
}

func (a *Adapter) document(entity any) (*objsync.Document, error) {
	doc, ok := entity.(*objsync.Document)
	if !ok || doc == nil {
		return nil, fmt.Errorf("%w: %s adapter cannot persist %T", objsync.ErrConfiguration, a.typ, entity)
	}
	if doc.GUID == "" {
		return nil, fmt.Errorf("%w: %s document without guid", objsync.ErrSyncRuntime, a.typ)
	}
	return doc, nil
}

// Add implements objsync.DaoAdapter. Adding a document that already exists is a no-op.
func (a *Adapter) Add(ctx context.Context, sess objsync.Session, entity any) error {
	be, err := backend(sess)
	if err != nil {
		return err
	}
	doc, err := a.document(entity)
	if err != nil {
		return err
	}
	existing, err := a.load(ctx, be, doc.GUID)
	if err != nil {
		return err
	}
	if existing != nil {
		doc.UID = existing.UID
		return nil
	}

	uid, err := be.NextUID(ctx)
	if err != nil {
		return objsync.RuntimeError("allocate uid", err)
	}
	payload, err := doc.MarshalFields()
	if err != nil {
		return objsync.RuntimeError("encode document", err)
	}
	doc.UID = uid
	be.Buffer().Put(a.key(doc.GUID), uid, payload)
	return nil
}

// Update implements objsync.DaoAdapter. With change tracking enabled an
// unchanged document is not written again.
func (a *Adapter) Update(ctx context.Context, sess objsync.Session, entity any) (any, error) {
	be, err := backend(sess)
	if err != nil {
		return nil, err
	}
	doc, err := a.document(entity)
	if err != nil {
		return nil, err
	}
	if doc.UID == 0 {
		existing, err := a.load(ctx, be, doc.GUID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: update of unknown %s guid=%s", objsync.ErrSyncRuntime, a.typ, doc.GUID)
		}
		doc.UID = existing.UID
	}

	payload, err := doc.MarshalFields()
	if err != nil {
		return nil, objsync.RuntimeError("encode document", err)
	}
	k := a.key(doc.GUID)
	if be.Buffer().Unchanged(k, payload) {
		return doc, nil
	}
	be.Buffer().Put(k, doc.UID, payload)
	return doc, nil
}

// Remove implements objsync.DaoAdapter.
func (a *Adapter) Remove(ctx context.Context, sess objsync.Session, guid string) (bool, error) {
	be, err := backend(sess)
	if err != nil {
		return false, err
	}
	existing, err := a.load(ctx, be, guid)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	be.Buffer().Delete(a.key(guid))
	return true, nil
}

// CreateBean implements objsync.DaoAdapter.
func (a *Adapter) CreateBean(source any) (any, error) {
	src, ok := source.(*objsync.Document)
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: %s adapter cannot create a bean for %T", objsync.ErrConfiguration, a.typ, source)
	}
	return objsync.NewDocument(a.typ, src.GUID), nil
}

// AssociatedAdapter is a document adapter for composite-key entities. Owner
// guids are found at a fixed position of the composite guid.
type AssociatedAdapter struct {
	*Adapter
	ownerPositions map[objsync.EntityType]int
	locator        objsync.EntityLocator
}

var (
	_ objsync.AssociatedDaoAdapter = (*AssociatedAdapter)(nil)
	_ objsync.LocatorUser          = (*AssociatedAdapter)(nil)
)

// NewAssociatedAdapter creates an associated adapter for t. ownerPositions
// maps each owner type to the index of its guid in the composite guid; the
// owner types are also the adapter's associated types.
func NewAssociatedAdapter(t objsync.EntityType, ownerPositions map[objsync.EntityType]int) *AssociatedAdapter {
	deps := make([]objsync.EntityType, 0, len(ownerPositions))
	for owner := range ownerPositions {
		deps = append(deps, owner)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return &AssociatedAdapter{Adapter: NewAdapter(t, deps...), ownerPositions: ownerPositions}
}

// UseLocator makes Add and Update resolve every owner guid of the composite
// guid through l before writing. With a strict locator a dangling owner fails
// the write with objsync.ErrUnresolvedGUID.
func (a *AssociatedAdapter) UseLocator(l objsync.EntityLocator) {
	a.locator = l
}

// Add implements objsync.DaoAdapter.
func (a *AssociatedAdapter) Add(ctx context.Context, sess objsync.Session, entity any) error {
	if err := a.resolveOwners(ctx, sess, entity); err != nil {
		return err
	}
	return a.Adapter.Add(ctx, sess, entity)
}

// Update implements objsync.DaoAdapter.
func (a *AssociatedAdapter) Update(ctx context.Context, sess objsync.Session, entity any) (any, error) {
	if err := a.resolveOwners(ctx, sess, entity); err != nil {
		return nil, err
	}
	return a.Adapter.Update(ctx, sess, entity)
}

func (a *AssociatedAdapter) resolveOwners(ctx context.Context, sess objsync.Session, entity any) error {
	if a.locator == nil {
		return nil
	}
	doc, err := a.document(entity)
	if err != nil {
		return err
	}
	parts := objsync.SplitCompositeGUID(doc.GUID)
	for _, owner := range a.deps {
		pos := a.ownerPositions[owner]
		if pos >= len(parts) || parts[pos] == "" {
			return fmt.Errorf("%w: %s guid=%s has no %s part", objsync.ErrUnresolvedGUID, a.typ, doc.GUID, owner)
		}
		if _, err := a.locator.Locate(ctx, sess, parts[pos], owner); err != nil {
			return fmt.Errorf("%s guid=%s: %w", a.typ, doc.GUID, err)
		}
	}
	return nil
}

// AssociatedGUIDs implements objsync.AssociatedDaoAdapter. Pending writes are
// flushed first so that they are part of the answer.
func (a *AssociatedAdapter) AssociatedGUIDs(ctx context.Context, sess objsync.Session, ownerType objsync.EntityType, ownerGUID string) ([]string, error) {
	pos, ok := a.ownerPositions[ownerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no owner type %s", objsync.ErrConfiguration, a.typ, ownerType)
	}
	be, err := backend(sess)
	if err != nil {
		return nil, err
	}
	if err := be.Flush(ctx); err != nil {
		return nil, objsync.RuntimeError("flush", err)
	}
	guids, err := be.ListGUIDs(ctx, string(a.typ))
	if err != nil {
		return nil, objsync.RuntimeError(fmt.Sprintf("list %s guids", a.typ), err)
	}
	var out []string
	for _, guid := range guids {
		parts := objsync.SplitCompositeGUID(guid)
		if pos < len(parts) && parts[pos] == ownerGUID {
			out = append(out, guid)
		}
	}
	sort.Strings(out)
	return out, nil
}

