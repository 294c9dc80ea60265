// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type associatedMemAdapter struct {
	*memAdapter
}

func (a associatedMemAdapter) AssociatedGUIDs(_ context.Context, _ Session, _ EntityType, ownerGUID string) ([]string, error) {
	var out []string
	for guid := range a.rows {
		if SplitCompositeGUID(guid)[0] == ownerGUID {
			out = append(out, guid)
		}
	}
	return out, nil
}

func TestRegistry_Lookup(t *testing.T) {
	products := newMemAdapter("Product", nil)
	links := associatedMemAdapter{newMemAdapter("ProductCategory", nil, "Product", "Category")}
	reg, err := NewRegistry(products, links)
	require.NoError(t, err)

	got, err := reg.DaoAdapter("Product")
	require.NoError(t, err)
	require.Same(t, products, got)

	_, err = reg.DaoAdapter("Nope")
	require.ErrorIs(t, err, ErrUnregisteredType)

	assoc, err := reg.AssociatedDaoAdapter("ProductCategory")
	require.NoError(t, err)
	links.rows[CompositeGUID("cat1", "P1")] = NewDocument("ProductCategory", CompositeGUID("cat1", "P1"))
	links.rows[CompositeGUID("cat2", "P1")] = NewDocument("ProductCategory", CompositeGUID("cat2", "P1"))
	guids, err := assoc.AssociatedGUIDs(context.Background(), newMemSession(), "Category", "cat1")
	require.NoError(t, err)
	require.Equal(t, []string{"cat1|P1"}, guids)

	_, err = reg.AssociatedDaoAdapter("Product")
	require.ErrorIs(t, err, ErrConfiguration)

	require.Equal(t, []EntityType{"Product", "ProductCategory"}, reg.Types())
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(newMemAdapter("Product", nil), newMemAdapter("Product", nil))
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRegistry(nil)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_TypePriorities(t *testing.T) {
	reg, err := NewRegistry(
		newMemAdapter("Coupon", nil, "CouponConfig"),
		newMemAdapter("CouponConfig", nil, "Promotion"),
		newMemAdapter("Promotion", nil),
		newMemAdapter("Category", nil, "Catalog", "Category"),
	)
	require.NoError(t, err)

	prio, err := reg.TypePriorities()
	require.NoError(t, err)
	require.Equal(t, map[EntityType]int{
		"Promotion":    0,
		"CouponConfig": 1,
		"Coupon":       2,
		"Category":     0, // Catalog is not registered, self reference ignored
	}, prio)
}

func TestRegistry_TypePrioritiesCycle(t *testing.T) {
	reg, err := NewRegistry(
		newMemAdapter("A", nil, "B"),
		newMemAdapter("B", nil, "A"),
	)
	require.NoError(t, err)
	_, err = reg.TypePriorities()
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_TypePrioritiesCyclePath(t *testing.T) {
	reg, err := NewRegistry(
		newMemAdapter("A", nil, "B", "C"),
		newMemAdapter("B", nil, "D"),
		newMemAdapter("C", nil, "E"),
		newMemAdapter("D", nil),
		newMemAdapter("E", nil, "C"),
	)
	require.NoError(t, err)
	_, err = reg.TypePriorities()
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "associated type cycle [A C E C]")
}

func TestUnit_SortByPriority(t *testing.T) {
	unit := NewTransactionJobUnit("u").
		Remove("CouponConfig", "cc-old").
		Update("Coupon", "c1", NewDocument("Coupon", "c1")).
		Remove("Coupon", "c-old").
		Update("CouponConfig", "cc1", NewDocument("CouponConfig", "cc1")).
		Update("Coupon", "c2", NewDocument("Coupon", "c2"))

	unit.SortByPriority(map[EntityType]int{"CouponConfig": 1, "Coupon": 2})

	var got []string
	for _, e := range unit.Entries {
		got = append(got, string(e.Command)+" "+e.GUID)
	}
	require.Equal(t, []string{
		"UPDATE cc1",
		"UPDATE c1",
		"UPDATE c2",
		"REMOVE c-old",
		"REMOVE cc-old",
	}, got)
}

func TestUnit_AddStampsUnitName(t *testing.T) {
	unit := NewTransactionJobUnit("")
	require.NotEmpty(t, unit.Name)
	unit.Remove("Product", "p1")
	unit.Add(&JobEntry{Type: "Product", Command: CmdRemove, GUID: "p2", UnitName: "other"})
	require.Equal(t, unit.Name, unit.Entries[0].UnitName)
	require.Equal(t, "other", unit.Entries[1].UnitName)
	require.Equal(t, 2, unit.Len())
}

func TestCompositeGUID(t *testing.T) {
	guid := CompositeGUID("cat-1", "P100")
	require.Equal(t, "cat-1|P100", guid)
	require.Equal(t, []string{"cat-1", "P100"}, SplitCompositeGUID(guid))
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand(" update ")
	require.NoError(t, err)
	require.Equal(t, CmdUpdate, c)

	_, err = ParseCommand("delete")
	require.ErrorIs(t, err, ErrInvalidEntry)
}
