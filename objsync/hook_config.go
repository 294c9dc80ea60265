// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// HookConfig configures the built-in callbacks. It is usually loaded from YAML:
//
//	flush_on_type_change: true
//	change_tracking_exempt: [ProductSku]
//	index_types:
//	  Product: product
//	price:
//	  types: [BaseAmount]
//	  price_list_field: price_list_guid
//	  object_type_field: object_type
//	  object_guid_field: object_guid
//	owner_closures:
//	  - owner_type: Product
//	    sources:
//	      ProductCategory: product_uid
type HookConfig struct {
	FlushOnTypeChange    bool                     `yaml:"flush_on_type_change"`
	ChangeTrackingExempt []EntityType             `yaml:"change_tracking_exempt"`
	IndexTypes           map[EntityType]IndexType `yaml:"index_types"`
	Price                *PriceHookConfig         `yaml:"price"`
	OwnerClosures        []OwnerClosureConfig     `yaml:"owner_closures"`
}

type PriceHookConfig struct {
	Types           []EntityType `yaml:"types"`
	PriceListField  string       `yaml:"price_list_field"`
	ObjectTypeField string       `yaml:"object_type_field"`
	ObjectGUIDField string       `yaml:"object_guid_field"`
}

// OwnerClosureConfig maps source entity types to the document field holding
// the uid of the affected owner.
type OwnerClosureConfig struct {
	OwnerType EntityType            `yaml:"owner_type"`
	Sources   map[EntityType]string `yaml:"sources"`
}

// HookSinks are the target-store collaborators the built-in callbacks write to.
// A nil sink disables the callbacks that need it.
type HookSinks struct {
	IndexQueue    IndexNotificationQueue
	PriceNotifier PriceChangeNotifier
	OwnerUpdater  OwnerBatchUpdater
}

// LoadHookConfig decodes a YAML hook configuration. Unknown keys are rejected.
func LoadHookConfig(r io.Reader) (*HookConfig, error) {
	var cfg HookConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse hook config: %w", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadHookConfigFile reads a YAML hook configuration from path.
func LoadHookConfigFile(path string) (*HookConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hook config %s: %w", path, err)
	}
	return LoadHookConfig(bytes.NewReader(data))
}

// Validate checks for incomplete sections.
func (c *HookConfig) Validate() error {
	if p := c.Price; p != nil && len(p.Types) > 0 {
		if p.PriceListField == "" || p.ObjectTypeField == "" || p.ObjectGUIDField == "" {
			return fmt.Errorf("%w: price hook needs price_list_field, object_type_field and object_guid_field", ErrConfiguration)
		}
	}
	for i, oc := range c.OwnerClosures {
		if oc.OwnerType == "" {
			return fmt.Errorf("%w: owner_closures[%d] has no owner_type", ErrConfiguration, i)
		}
	}
	return nil
}

// Callbacks builds the configured built-in chain in a fixed order: flush
// boundary, change tracking, index notification, price notification, owner
// closures.
func (c *HookConfig) Callbacks(sinks HookSinks) []JobTransactionCallback {
	var out []JobTransactionCallback
	if c.FlushOnTypeChange {
		out = append(out, &FlushBoundaryCallback{})
	}
	if len(c.ChangeTrackingExempt) > 0 {
		out = append(out, NewChangeTrackingCallback(c.ChangeTrackingExempt...))
	}
	if len(c.IndexTypes) > 0 && sinks.IndexQueue != nil {
		out = append(out, NewIndexNotificationCallback(sinks.IndexQueue, c.IndexTypes))
	}
	if p := c.Price; p != nil && len(p.Types) > 0 && sinks.PriceNotifier != nil {
		keyFn := DocumentPriceKeys(p.PriceListField, p.ObjectTypeField, p.ObjectGUIDField)
		fns := make(map[EntityType]PriceKeyFunc, len(p.Types))
		for _, t := range p.Types {
			fns[t] = keyFn
		}
		out = append(out, NewPriceNotificationCallback(sinks.PriceNotifier, fns))
	}
	if sinks.OwnerUpdater != nil {
		for i, oc := range c.OwnerClosures {
			resolvers := make(map[EntityType]OwnerResolver, len(oc.Sources))
			for t, field := range oc.Sources {
				resolvers[t] = DocumentFieldOwners(field)
			}
			out = append(out, &OwnerClosureCallback{
				ID:        fmt.Sprintf("owner-closure:%s:%d", oc.OwnerType, i),
				OwnerType: oc.OwnerType,
				Resolvers: resolvers,
				Updater:   sinks.OwnerUpdater,
			})
		}
	}
	return out
}
