// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"fmt"
	"strings"
)

// validateEntry checks the shape of an entry before any adapter is touched.
func validateEntry(entry *JobEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if strings.TrimSpace(string(entry.Type)) == "" {
		return fmt.Errorf("%w: empty entity type", ErrInvalidEntry)
	}
	if strings.TrimSpace(entry.GUID) == "" {
		return fmt.Errorf("%w: empty guid for %s", ErrInvalidEntry, entry.Type)
	}
	switch entry.Command {
	case CmdUpdate:
		if entry.Source == nil {
			return fmt.Errorf("%w: UPDATE of %s guid=%s has no source object", ErrInvalidEntry, entry.Type, entry.GUID)
		}
		if doc, ok := entry.Source.(*Document); ok && doc != nil {
			if doc.GUID != "" && doc.GUID != entry.GUID {
				return fmt.Errorf("%w: source guid %q of %s does not match entry guid %q", ErrInvalidEntry, doc.GUID, entry.Type, entry.GUID)
			}
			if doc.Type != "" && doc.Type != entry.Type {
				return fmt.Errorf("%w: source type %s does not match entry type %s", ErrInvalidEntry, doc.Type, entry.Type)
			}
		}
	case CmdRemove:
		// source is optional
	default:
		return fmt.Errorf("%w: invalid command %q", ErrInvalidEntry, entry.Command)
	}
	return nil
}

// ParseCommand normalizes case and whitespace of a textual command.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.ToUpper(strings.TrimSpace(s))); c {
	case CmdUpdate, CmdRemove:
		return c, nil
	default:
		return "", fmt.Errorf("%w: invalid command %q", ErrInvalidEntry, s)
	}
}
