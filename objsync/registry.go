// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"fmt"
	"slices"
	"sort"
)

// Registry maps entity types to their DaoAdapter. It is built once and is
// read-only afterwards, so concurrent lookups need no locking.
type Registry struct {
	adapters map[EntityType]DaoAdapter
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters for the same type is an error.
func NewRegistry(adapters ...DaoAdapter) (*Registry, error) {
	r := &Registry{adapters: make(map[EntityType]DaoAdapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("%w: nil dao adapter", ErrConfiguration)
		}
		t := a.Type()
		if t == "" {
			return nil, fmt.Errorf("%w: dao adapter %T has empty type", ErrConfiguration, a)
		}
		if prev, ok := r.adapters[t]; ok {
			return nil, fmt.Errorf("%w: duplicate dao adapter for %s (%T and %T)", ErrConfiguration, t, prev, a)
		}
		r.adapters[t] = a
	}
	return r, nil
}

// DaoAdapter returns the adapter for t or an ErrUnregisteredType error.
func (r *Registry) DaoAdapter(t EntityType) (DaoAdapter, error) {
	if r != nil {
		if a, ok := r.adapters[t]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnregisteredType, t)
}

// AssociatedDaoAdapter returns the adapter for t when it implements the associated extension.
func (r *Registry) AssociatedDaoAdapter(t EntityType) (AssociatedDaoAdapter, error) {
	a, err := r.DaoAdapter(t)
	if err != nil {
		return nil, err
	}
	aa, ok := a.(AssociatedDaoAdapter)
	if !ok {
		return nil, fmt.Errorf("%w: adapter for %s has no associated guid lookup", ErrConfiguration, t)
	}
	return aa, nil
}

// Types returns the registered types in lexical order.
func (r *Registry) Types() []EntityType {
	types := make([]EntityType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// TypePriorities assigns every registered type a priority such that each type
// has a higher priority than all of its associated types. Types without
// dependencies get 0. A dependency cycle is a configuration error.
// Associated types that are not registered are ignored.
func (r *Registry) TypePriorities() (map[EntityType]int, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[EntityType]int, len(r.adapters))
	prio := make(map[EntityType]int, len(r.adapters))

	var visit func(t EntityType, path []EntityType) error
	visit = func(t EntityType, path []EntityType) error {
		switch state[t] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: associated type cycle %v", ErrConfiguration, append(slices.Clone(path), t))
		}
		state[t] = visiting
		next := append(slices.Clone(path), t)
		p := 0
		for _, dep := range r.adapters[t].AssociatedTypes() {
			if dep == t {
				continue
			}
			if _, ok := r.adapters[dep]; !ok {
				continue
			}
			if err := visit(dep, next); err != nil {
				return err
			}
			if prio[dep]+1 > p {
				p = prio[dep] + 1
			}
		}
		prio[t] = p
		state[t] = done
		return nil
	}

	for _, t := range r.Types() {
		if err := visit(t, nil); err != nil {
			return nil, err
		}
	}
	return prio, nil
}
