// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"fmt"
)

// PriceChangeKey identifies one priced object in one price list.
type PriceChangeKey struct {
	PriceListGUID string
	ObjectType    string
	ObjectGUID    string
}

// PriceKeyFunc extracts the price keys touched by an entry. target is the
// persisted entity after an update, or the pre-removal snapshot (possibly nil).
type PriceKeyFunc func(entry *JobEntry, target any) ([]PriceChangeKey, error)

// PriceChangeNotifier publishes one price change notification.
type PriceChangeNotifier interface {
	NotifyPriceChanged(ctx context.Context, sess Session, key PriceChangeKey) error
}

// PriceNotificationCallbackID identifies PriceNotificationCallback in diagnostics.
const PriceNotificationCallbackID = "price-notification"

// PriceNotificationCallback collects the price keys touched by a unit and
// emits one notification per distinct key at PreCommit.
type PriceNotificationCallback struct {
	NopCallback
	Notifier PriceChangeNotifier
	KeyFuncs map[EntityType]PriceKeyFunc
}

// NewPriceNotificationCallback creates the callback with per-type key extractors.
func NewPriceNotificationCallback(notifier PriceChangeNotifier, keyFuncs map[EntityType]PriceKeyFunc) *PriceNotificationCallback {
	return &PriceNotificationCallback{Notifier: notifier, KeyFuncs: keyFuncs}
}

// priceBuffer is an insertion-ordered set of keys.
type priceBuffer struct {
	seen map[PriceChangeKey]struct{}
	keys []PriceChangeKey
}

func (b *priceBuffer) add(k PriceChangeKey) {
	if _, ok := b.seen[k]; ok {
		return
	}
	b.seen[k] = struct{}{}
	b.keys = append(b.keys, k)
}

func (c *PriceNotificationCallback) CallbackID() string {
	return PriceNotificationCallbackID
}

func (c *PriceNotificationCallback) buffer(uc *UnitContext) *priceBuffer {
	return uc.State("price-buffer", func() any {
		return &priceBuffer{seen: make(map[PriceChangeKey]struct{})}
	}).(*priceBuffer)
}

func (c *PriceNotificationCallback) PostUpdate(_ context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	return c.collect(uc, entry, target)
}

func (c *PriceNotificationCallback) PostRemove(_ context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	return c.collect(uc, entry, target)
}

func (c *PriceNotificationCallback) collect(uc *UnitContext, entry *JobEntry, target any) error {
	fn, ok := c.KeyFuncs[entry.Type]
	if !ok {
		return nil
	}
	keys, err := fn(entry, target)
	if err != nil {
		return fmt.Errorf("extract price keys: %w", err)
	}
	buf := c.buffer(uc)
	for _, k := range keys {
		buf.add(k)
	}
	return nil
}

// PreCommit emits the buffered notifications and clears the buffer.
func (c *PriceNotificationCallback) PreCommit(ctx context.Context, uc *UnitContext) error {
	buf := c.buffer(uc)
	keys := buf.keys
	buf.keys = nil
	buf.seen = make(map[PriceChangeKey]struct{})
	if c.Notifier == nil {
		return nil
	}
	for _, k := range keys {
		if err := c.Notifier.NotifyPriceChanged(ctx, uc.Session, k); err != nil {
			return fmt.Errorf("notify price change %s/%s/%s: %w", k.PriceListGUID, k.ObjectType, k.ObjectGUID, err)
		}
	}
	return nil
}

// DocumentPriceKeys builds a PriceKeyFunc for documents carrying the price
// list guid, object type and object guid in the named fields.
func DocumentPriceKeys(priceListField, objectTypeField, objectGUIDField string) PriceKeyFunc {
	return func(entry *JobEntry, target any) ([]PriceChangeKey, error) {
		doc, ok := target.(*Document)
		if !ok || doc == nil {
			// removal of an absent entity, nothing was priced
			return nil, nil
		}
		pl, ot, og := doc.StrField(priceListField), doc.StrField(objectTypeField), doc.StrField(objectGUIDField)
		if pl == nil || ot == nil || og == nil {
			return nil, fmt.Errorf("%s guid=%s lacks price key fields", entry.Type, entry.GUID)
		}
		return []PriceChangeKey{{PriceListGUID: *pl, ObjectType: *ot, ObjectGUID: *og}}, nil
	}
}
