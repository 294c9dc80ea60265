// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memIndexQueue struct {
	records []IndexNotification
}

func (q *memIndexQueue) Enqueue(_ context.Context, _ Session, n IndexNotification) error {
	q.records = append(q.records, n)
	return nil
}

type memPriceNotifier struct {
	keys []PriceChangeKey
}

func (n *memPriceNotifier) NotifyPriceChanged(_ context.Context, _ Session, key PriceChangeKey) error {
	n.keys = append(n.keys, key)
	return nil
}

type ownerCall struct {
	ownerType EntityType
	uids      []int64
}

type memOwnerUpdater struct {
	calls []ownerCall
}

func (u *memOwnerUpdater) UpdateOwners(_ context.Context, _ Session, ownerType EntityType, uids []int64) error {
	u.calls = append(u.calls, ownerCall{ownerType, uids})
	return nil
}

func baseAmount(guid, priceList, objectGUID string, amount float64) *Document {
	return NewDocument("BaseAmount", guid).
		Set("price_list_guid", priceList).
		Set("object_type", "PRODUCT").
		Set("object_guid", objectGUID).
		Set("list_value", amount)
}

func TestPriceNotification_CollapsesDuplicateKeysAtPreCommit(t *testing.T) {
	ctx := context.Background()
	notifier := &memPriceNotifier{}
	cb := NewPriceNotificationCallback(notifier, map[EntityType]PriceKeyFunc{
		"BaseAmount": DocumentPriceKeys("price_list_guid", "object_type", "object_guid"),
	})
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{cb}}, newMemAdapter("BaseAmount", nil))

	uc := svc.NewUnitContext(newMemSession(), "prices")
	require.NoError(t, svc.ProcessJobEntry(ctx, uc, &JobEntry{
		Type: "BaseAmount", Command: CmdUpdate, GUID: "ba-1", Source: baseAmount("ba-1", "PL-USD", "P100", 10),
	}))
	require.NoError(t, svc.ProcessJobEntry(ctx, uc, &JobEntry{
		Type: "BaseAmount", Command: CmdUpdate, GUID: "ba-2", Source: baseAmount("ba-2", "PL-USD", "P100", 5),
	}))
	require.Empty(t, notifier.keys, "nothing is emitted before pre-commit")

	require.NoError(t, svc.FinishUnit(ctx, uc))
	require.Equal(t, []PriceChangeKey{{PriceListGUID: "PL-USD", ObjectType: "PRODUCT", ObjectGUID: "P100"}}, notifier.keys)
}

func TestPriceNotification_BufferIsPerUnit(t *testing.T) {
	ctx := context.Background()
	notifier := &memPriceNotifier{}
	cb := NewPriceNotificationCallback(notifier, map[EntityType]PriceKeyFunc{
		"BaseAmount": DocumentPriceKeys("price_list_guid", "object_type", "object_guid"),
	})
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{cb}}, newMemAdapter("BaseAmount", nil))

	first := NewTransactionJobUnit("a").Update("BaseAmount", "ba-1", baseAmount("ba-1", "PL-USD", "P1", 1))
	second := NewTransactionJobUnit("b").Update("BaseAmount", "ba-2", baseAmount("ba-2", "PL-EUR", "P2", 1))
	require.NoError(t, svc.ProcessTransactionJobUnit(ctx, newMemSession(), first))
	require.NoError(t, svc.ProcessTransactionJobUnit(ctx, newMemSession(), second))

	require.Equal(t, []PriceChangeKey{
		{PriceListGUID: "PL-USD", ObjectType: "PRODUCT", ObjectGUID: "P1"},
		{PriceListGUID: "PL-EUR", ObjectType: "PRODUCT", ObjectGUID: "P2"},
	}, notifier.keys)
}

func TestPriceNotification_RemoveOfAbsentEntityIsIgnored(t *testing.T) {
	notifier := &memPriceNotifier{}
	cb := NewPriceNotificationCallback(notifier, map[EntityType]PriceKeyFunc{
		"BaseAmount": DocumentPriceKeys("price_list_guid", "object_type", "object_guid"),
	})
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{cb}}, newMemAdapter("BaseAmount", nil))

	unit := NewTransactionJobUnit("u").Remove("BaseAmount", "gone")
	require.NoError(t, svc.ProcessTransactionJobUnit(context.Background(), newMemSession(), unit))
	require.Empty(t, notifier.keys)
}

func TestIndexNotification_UnknownTypeIsNoop(t *testing.T) {
	queue := &memIndexQueue{}
	cb := NewIndexNotificationCallback(queue, map[EntityType]IndexType{"Product": "product"})
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{cb}},
		newMemAdapter("Product", nil), newMemAdapter("Warehouse", nil))

	unit := NewTransactionJobUnit("u").
		Update("Warehouse", "w1", NewDocument("Warehouse", "w1")).
		Remove("Warehouse", "w1")
	require.NoError(t, svc.ProcessTransactionJobUnit(context.Background(), newMemSession(), unit))
	require.Empty(t, queue.records)
}

func TestIndexNotification_UpdateAndDelete(t *testing.T) {
	queue := &memIndexQueue{}
	cb := NewIndexNotificationCallback(queue, map[EntityType]IndexType{"Product": "product"})
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{cb}}, newMemAdapter("Product", nil))

	unit := NewTransactionJobUnit("u").
		Update("Product", "p1", productDoc("p1", "x")).
		Remove("Product", "p1").
		Remove("Product", "p1")
	require.NoError(t, svc.ProcessTransactionJobUnit(context.Background(), newMemSession(), unit))

	require.Equal(t, []IndexNotification{
		{IndexType: "product", Operation: IndexOpUpdate, AffectedUID: 1, EntityType: "Product", GUID: "p1"},
		{IndexType: "product", Operation: IndexOpDelete, AffectedUID: 1, EntityType: "Product", GUID: "p1"},
	}, queue.records)
}

func TestFlushBoundary_FlushesOnTypeChange(t *testing.T) {
	sess := newMemSession()
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{&FlushBoundaryCallback{}}},
		newMemAdapter("CouponConfig", nil), newMemAdapter("Coupon", nil, "CouponConfig"))

	unit := NewTransactionJobUnit("u").
		Update("CouponConfig", "cc1", NewDocument("CouponConfig", "cc1")).
		Update("CouponConfig", "cc2", NewDocument("CouponConfig", "cc2")).
		Update("Coupon", "c1", NewDocument("Coupon", "c1")).
		Remove("Coupon", "c0").
		Remove("CouponConfig", "cc0")
	require.NoError(t, svc.ProcessTransactionJobUnit(context.Background(), sess, unit))
	require.Equal(t, 2, sess.flushes)
}

func TestChangeTracking_TogglesForExemptTypes(t *testing.T) {
	sess := newMemSession()
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{NewChangeTrackingCallback("ProductSku")}},
		newMemAdapter("Product", nil), newMemAdapter("ProductSku", nil))

	unit := NewTransactionJobUnit("u").
		Update("Product", "p1", productDoc("p1", "x")).
		Update("ProductSku", "s1", NewDocument("ProductSku", "s1")).
		Update("ProductSku", "s2", NewDocument("ProductSku", "s2")).
		Update("Product", "p2", productDoc("p2", "y"))
	require.NoError(t, svc.ProcessTransactionJobUnit(context.Background(), sess, unit))

	require.Equal(t, []bool{true, false, true, true}, sess.toggles)
	require.True(t, sess.ChangeTracking())
}

func TestOwnerClosure_BatchesOwnersOnce(t *testing.T) {
	updater := &memOwnerUpdater{}
	cb := &OwnerClosureCallback{
		OwnerType: "Product",
		Resolvers: map[EntityType]OwnerResolver{"ProductCategory": DocumentFieldOwners("product_uid")},
		Updater:   updater,
	}
	require.Equal(t, "owner-closure:Product", cb.CallbackID())
	svc := newTestService(t, &ServiceConfig{Callbacks: []JobTransactionCallback{cb}}, newMemAdapter("ProductCategory", nil))

	link := func(guid string, productUID int64) *Document {
		return NewDocument("ProductCategory", guid).Set("product_uid", productUID)
	}
	unit := NewTransactionJobUnit("u").
		Update("ProductCategory", CompositeGUID("cat1", "P7"), link(CompositeGUID("cat1", "P7"), 7)).
		Update("ProductCategory", CompositeGUID("cat1", "P3"), link(CompositeGUID("cat1", "P3"), 3)).
		Update("ProductCategory", CompositeGUID("cat2", "P7"), link(CompositeGUID("cat2", "P7"), 7))
	require.NoError(t, svc.ProcessTransactionJobUnit(context.Background(), newMemSession(), unit))

	require.Equal(t, []ownerCall{{ownerType: "Product", uids: []int64{3, 7}}}, updater.calls)
}
