// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Identified is implemented by target entities that carry a numeric
// target-side id (used for search index notifications).
type Identified interface {
	UIDPK() int64
}

// Document is a generic entity: a typed, guid-keyed bag of fields. Both
// bundled target stores persist documents as JSON.
type Document struct {
	Type   EntityType     `json:"type" yaml:"type"`
	GUID   string         `json:"guid" yaml:"guid"`
	UID    int64          `json:"uid,omitempty" yaml:"uid,omitempty"` // assigned by the target store
	Fields map[string]any `json:"fields" yaml:"fields"`
}

// NewDocument creates a document with an empty field set.
func NewDocument(t EntityType, guid string) *Document {
	return &Document{Type: t, GUID: guid, Fields: map[string]any{}}
}

// UIDPK implements Identified.
func (d *Document) UIDPK() int64 {
	return d.UID
}

// Set assigns a field and returns the document for chaining.
func (d *Document) Set(key string, value any) *Document {
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	d.Fields[key] = value
	return d
}

// Clone returns a shallow copy with its own field map.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Fields = maps.Clone(d.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	return &c
}

// MarshalFields encodes the field set as a JSON object.
func (d *Document) MarshalFields() ([]byte, error) {
	if d.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Fields)
}

// UnmarshalFields replaces the field set with the given JSON object.
func (d *Document) UnmarshalFields(payload []byte) error {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("parse document fields: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	d.Fields = m
	return nil
}

// SameFields reports whether both documents encode to the same field JSON.
func (d *Document) SameFields(other *Document) bool {
	if other == nil {
		return false
	}
	a, errA := d.MarshalFields()
	b, errB := other.MarshalFields()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// HasField checks if a field exists (even if it's null).
func (d *Document) HasField(key string) bool {
	_, ok := d.Fields[key]
	return ok
}

// StrField extracts a nullable string field.
// Returns nil if the field is missing, null, or not a string.
func (d *Document) StrField(key string) *string {
	if v, ok := d.Fields[key]; ok && v != nil {
		if s, ok2 := v.(string); ok2 {
			return &s
		}
	}
	return nil
}

// Int64Field extracts a nullable int64 field.
// Accepts numeric values and numeric strings.
func (d *Document) Int64Field(key string) *int64 {
	v, ok := d.Fields[key]
	if !ok || v == nil {
		return nil
	}
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int64:
		n = t
	case float64:
		n = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil
		}
		n = i
	case string:
		if t == "" {
			return nil
		}
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

// Int64FieldRequired extracts a required int64 field.
func (d *Document) Int64FieldRequired(key string) (int64, error) {
	if n := d.Int64Field(key); n != nil {
		return *n, nil
	}
	return 0, fmt.Errorf("required int64 field '%s' is missing or invalid", key)
}

// Float64Field extracts a nullable float64 field.
// Accepts numeric values and numeric strings.
func (d *Document) Float64Field(key string) *float64 {
	v, ok := d.Fields[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch t := v.(type) {
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case float64:
		f = t
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return nil
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = x
	default:
		return nil
	}
	return &f
}

// BoolField extracts a nullable bool field.
// Accepts bool values and the strings "true"/"false", "1"/"0".
func (d *Document) BoolField(key string) *bool {
	v, ok := d.Fields[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case bool:
		return &t
	case string:
		switch t {
		case "1", "true", "TRUE":
			b := true
			return &b
		case "0", "false", "FALSE":
			b := false
			return &b
		}
	}
	return nil
}
