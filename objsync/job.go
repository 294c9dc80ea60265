// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// JobEntry is one change record of a transaction job unit.
// The engine reads it and never modifies it.
type JobEntry struct {
	Type     EntityType `json:"type" yaml:"type"`
	Command  Command    `json:"command" yaml:"command"`
	GUID     string     `json:"guid" yaml:"guid"`
	Source   any        `json:"source,omitempty" yaml:"source,omitempty"` // nil is allowed for REMOVE
	UnitName string     `json:"unit_name,omitempty" yaml:"unit_name,omitempty"`
}

func (e *JobEntry) String() string {
	return fmt.Sprintf("%s %s guid=%s unit=%s", e.Command, e.Type, e.GUID, e.UnitName)
}

// TransactionJobUnit is an ordered batch of entries committed atomically.
// Entries are applied in slice order.
type TransactionJobUnit struct {
	Name    string      `json:"name" yaml:"name"`
	Entries []*JobEntry `json:"entries" yaml:"entries"`
}

// NewTransactionJobUnit creates an empty unit. An empty name is replaced by a random one.
func NewTransactionJobUnit(name string) *TransactionJobUnit {
	if name == "" {
		name = "unit-" + uuid.NewString()
	}
	return &TransactionJobUnit{Name: name}
}

// Add appends an entry and stamps it with the unit name when it has none.
func (u *TransactionJobUnit) Add(entry *JobEntry) *TransactionJobUnit {
	if entry.UnitName == "" {
		entry.UnitName = u.Name
	}
	u.Entries = append(u.Entries, entry)
	return u
}

// Update is a shortcut for adding an UPDATE entry.
func (u *TransactionJobUnit) Update(t EntityType, guid string, source any) *TransactionJobUnit {
	return u.Add(&JobEntry{Type: t, Command: CmdUpdate, GUID: guid, Source: source})
}

// Remove is a shortcut for adding a REMOVE entry.
func (u *TransactionJobUnit) Remove(t EntityType, guid string) *TransactionJobUnit {
	return u.Add(&JobEntry{Type: t, Command: CmdRemove, GUID: guid})
}

// Len returns the number of entries.
func (u *TransactionJobUnit) Len() int {
	return len(u.Entries)
}

// SortByPriority orders the entries the way a batch producer is expected to:
// UPDATEs first with owners before dependents (ascending priority), then
// REMOVEs with dependents before owners (descending priority). The sort is
// stable, so entries of equal priority keep their relative order.
//
// The sync service never calls this; it applies entries in the order given.
func (u *TransactionJobUnit) SortByPriority(priorities map[EntityType]int) {
	rank := func(e *JobEntry) (int, int) {
		p := priorities[e.Type]
		if e.Command == CmdRemove {
			return 1, -p
		}
		return 0, p
	}
	sort.SliceStable(u.Entries, func(i, j int) bool {
		gi, pi := rank(u.Entries[i])
		gj, pj := rank(u.Entries[j])
		if gi != gj {
			return gi < gj
		}
		return pi < pj
	})
}

// CompositeGUID joins key parts with GUIDSeparator.
func CompositeGUID(parts ...string) string {
	return strings.Join(parts, GUIDSeparator)
}

// SplitCompositeGUID splits a composite GUID into its parts.
func SplitCompositeGUID(guid string) []string {
	return strings.Split(guid, GUIDSeparator)
}

// SyncErrorResultItem describes the entry that made a unit fail.
type SyncErrorResultItem struct {
	UnitName   string     `json:"unit_name"`
	Type       EntityType `json:"type,omitempty"`
	GUID       string     `json:"guid,omitempty"`
	Command    Command    `json:"command,omitempty"`
	CallbackID string     `json:"callback_id,omitempty"` // set when a hook failed
}

func newSyncErrorResultItem(entry *JobEntry) SyncErrorResultItem {
	return SyncErrorResultItem{
		UnitName: entry.UnitName,
		Type:     entry.Type,
		GUID:     entry.GUID,
		Command:  entry.Command,
	}
}
