// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"context"
	"fmt"
)

// EntityLocator resolves a (guid, type) pair to a persisted target-side object.
// Adapters use it to resolve references to other entities.
type EntityLocator interface {
	Locate(ctx context.Context, sess Session, guid string, t EntityType) (any, error)
}

// LocatorUser is implemented by adapters that can resolve references through
// an EntityLocator once the registry holding them exists.
type LocatorUser interface {
	UseLocator(l EntityLocator)
}

// RegistryLocator resolves entities through the adapters of a registry.
// In strict mode a guid that cannot be resolved is a configuration error;
// otherwise it resolves to nil.
type RegistryLocator struct {
	Registry *Registry
	Strict   bool
}

// Locate implements EntityLocator.
func (l *RegistryLocator) Locate(ctx context.Context, sess Session, guid string, t EntityType) (any, error) {
	adapter, err := l.Registry.DaoAdapter(t)
	if err != nil {
		return nil, err
	}
	obj, err := adapter.Get(ctx, sess, guid)
	if err != nil {
		return nil, RuntimeError(fmt.Sprintf("locate %s guid=%s", t, guid), err)
	}
	if isNil(obj) {
		if l.Strict {
			return nil, fmt.Errorf("%w: %s guid=%s", ErrUnresolvedGUID, t, guid)
		}
		return nil, nil
	}
	return obj, nil
}

// UseStrictLocator hands a strict RegistryLocator over r to the adapters of
// types. Every one of them must implement LocatorUser.
func (r *Registry) UseStrictLocator(types ...EntityType) error {
	loc := &RegistryLocator{Registry: r, Strict: true}
	for _, t := range types {
		adapter, err := r.DaoAdapter(t)
		if err != nil {
			return err
		}
		user, ok := adapter.(LocatorUser)
		if !ok {
			return fmt.Errorf("%w: adapter for %s cannot use an entity locator", ErrConfiguration, t)
		}
		user.UseLocator(loc)
	}
	return nil
}
