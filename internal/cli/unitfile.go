// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mobiletoly/go-objsync/objsync"
)

// unitFile is the on-disk form of a transaction job unit:
//
//	name: catalog-42
//	entries:
//	  - {type: Product, command: UPDATE, guid: P1, fields: {name: Shoe}}
//	  - {type: ProductSku, command: REMOVE, guid: S9}
type unitFile struct {
	Name    string      `json:"name" yaml:"name"`
	Entries []entryFile `json:"entries" yaml:"entries"`
}

type entryFile struct {
	Type    string         `json:"type" yaml:"type"`
	Command string         `json:"command" yaml:"command"`
	GUID    string         `json:"guid" yaml:"guid"`
	Fields  map[string]any `json:"fields" yaml:"fields"`
}

// ReadUnitFile loads a unit from a .json, .yaml or .yml file.
func ReadUnitFile(path string) (*objsync.TransactionJobUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeUnit(data, "json")
	default:
		return DecodeUnit(data, "yaml")
	}
}

// DecodeUnit decodes a unit in the given format ("json" or "yaml"). UPDATE
// entries carry an objsync.Document source built from their fields.
func DecodeUnit(data []byte, format string) (*objsync.TransactionJobUnit, error) {
	var uf unitFile
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&uf); err != nil {
			return nil, fmt.Errorf("%w: parse unit: %w", objsync.ErrInvalidEntry, err)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&uf); err != nil {
			return nil, fmt.Errorf("%w: parse unit: %w", objsync.ErrInvalidEntry, err)
		}
	default:
		return nil, fmt.Errorf("unknown unit format %q", format)
	}

	unit := objsync.NewTransactionJobUnit(uf.Name)
	for i, ef := range uf.Entries {
		cmd, err := objsync.ParseCommand(ef.Command)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entry := &objsync.JobEntry{Type: objsync.EntityType(ef.Type), Command: cmd, GUID: ef.GUID}
		if cmd == objsync.CmdUpdate {
			doc := objsync.NewDocument(entry.Type, ef.GUID)
			for k, v := range ef.Fields {
				doc.Set(k, v)
			}
			entry.Source = doc
		}
		unit.Add(entry)
	}
	return unit, nil
}
