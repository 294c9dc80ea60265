// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"fmt"
	"slices"
)

// OwnerResolver returns the numeric ids of the owners affected by an entry.
// target is the persisted entity after an update or the pre-removal snapshot.
type OwnerResolver func(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) ([]int64, error)

// OwnerBatchUpdater runs the batched owner update (e.g. product reindex).
type OwnerBatchUpdater interface {
	UpdateOwners(ctx context.Context, sess Session, ownerType EntityType, uids []int64) error
}

// OwnerClosureCallback accumulates owners affected by the entries of a unit
// and triggers one batched update for all of them at PreCommit, instead of
// one update per entry.
type OwnerClosureCallback struct {
	NopCallback
	ID        string
	OwnerType EntityType
	Resolvers map[EntityType]OwnerResolver
	Updater   OwnerBatchUpdater
}

func (c *OwnerClosureCallback) CallbackID() string {
	if c.ID != "" {
		return c.ID
	}
	return "owner-closure:" + string(c.OwnerType)
}

func (c *OwnerClosureCallback) owners(uc *UnitContext) map[int64]struct{} {
	return uc.State(c.CallbackID(), func() any { return make(map[int64]struct{}) }).(map[int64]struct{})
}

func (c *OwnerClosureCallback) PostUpdate(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	return c.collect(ctx, uc, entry, target)
}

func (c *OwnerClosureCallback) PostRemove(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	return c.collect(ctx, uc, entry, target)
}

func (c *OwnerClosureCallback) collect(ctx context.Context, uc *UnitContext, entry *JobEntry, target any) error {
	resolve, ok := c.Resolvers[entry.Type]
	if !ok {
		return nil
	}
	uids, err := resolve(ctx, uc, entry, target)
	if err != nil {
		return fmt.Errorf("resolve %s owners: %w", c.OwnerType, err)
	}
	set := c.owners(uc)
	for _, uid := range uids {
		if uid != 0 {
			set[uid] = struct{}{}
		}
	}
	return nil
}

// PreCommit flushes the accumulated owner ids in one sorted batch.
func (c *OwnerClosureCallback) PreCommit(ctx context.Context, uc *UnitContext) error {
	set := c.owners(uc)
	if len(set) == 0 || c.Updater == nil {
		return nil
	}
	uids := make([]int64, 0, len(set))
	for uid := range set {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	clear(set)
	return c.Updater.UpdateOwners(ctx, uc.Session, c.OwnerType, uids)
}

// DocumentFieldOwners builds an OwnerResolver reading owner uids from an
// int64 field of the target document.
func DocumentFieldOwners(field string) OwnerResolver {
	return func(_ context.Context, _ *UnitContext, _ *JobEntry, target any) ([]int64, error) {
		doc, ok := target.(*Document)
		if !ok || doc == nil {
			return nil, nil
		}
		if uid := doc.Int64Field(field); uid != nil {
			return []int64{*uid}, nil
		}
		return nil, nil
	}
}
