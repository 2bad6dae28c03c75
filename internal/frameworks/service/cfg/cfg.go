// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package cfg decodes raw [http.services.<name>] and interceptor profile
// tables into typed config structs.
package cfg

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill in their own defaults.
// It runs after decoding.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes input into the struct pointed to by c. Duration fields
// accept Go duration strings such as "30s".
func Decode(input map[string]any, c any) error {
	_, err := decode(input, c)
	return err
}

// DecodeWithUnused is Decode that also returns the keys of input no field
// consumed, sorted.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	return decode(input, c)
}

// DecodeStrict is Decode that rejects unknown keys.
func DecodeStrict(input map[string]any, c any) error {
	unused, err := decode(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unknown config keys: %v", unused)
	}
	return nil
}

func decode(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:   &md,
		Result:     c,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(input); err != nil {
		return nil, err
	}
	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}
	sort.Strings(md.Unused)
	return md.Unused, nil
}
