// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package activity

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidationError reports a property whose value does not have the
// declared shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var stringProps = []string{
	"id", "objectType", "content", "displayName", "summary",
	"published", "updated", "url",
}

var objectProps = []string{"author", "inReplyTo"}

var stringListProps = []string{"upstreamDuplicates", "downstreamDuplicates"}

// Validate checks that every modeled property of props is either absent or
// exactly the declared shape. Values are never coerced.
func Validate(props map[string]any) error {
	return validate(props, "")
}

func validate(props map[string]any, prefix string) error {
	for _, name := range stringProps {
		if v, ok := props[name]; ok {
			if _, isString := v.(string); !isString {
				return invalid(prefix, name, "must be a string")
			}
		}
	}

	for _, name := range objectProps {
		v, ok := props[name]
		if !ok {
			continue
		}
		sub, isObject := v.(map[string]any)
		if !isObject {
			return invalid(prefix, name, "must be an object")
		}
		if err := validate(sub, prefix+name+"."); err != nil {
			return err
		}
	}

	if v, ok := props["image"]; ok {
		if err := validateMediaLink(v, prefix+"image"); err != nil {
			return err
		}
	}

	if v, ok := props["attachments"]; ok {
		list, isList := v.([]any)
		if !isList {
			return invalid(prefix, "attachments", "must be an array")
		}
		for i, item := range list {
			field := fmt.Sprintf("%sattachments[%d]", prefix, i)
			sub, isObject := item.(map[string]any)
			if !isObject {
				return &ValidationError{Field: field, Reason: "must be an object"}
			}
			if err := validate(sub, field+"."); err != nil {
				return err
			}
		}
	}

	for _, name := range stringListProps {
		v, ok := props[name]
		if !ok {
			continue
		}
		list, isList := v.([]any)
		if !isList {
			return invalid(prefix, name, "must be an array")
		}
		for i, item := range list {
			if _, isString := item.(string); !isString {
				return &ValidationError{Field: fmt.Sprintf("%s%s[%d]", prefix, name, i), Reason: "must be a string"}
			}
		}
	}

	if v, ok := props["links"]; ok {
		if err := validateLinks(v, prefix+"links"); err != nil {
			return err
		}
	}

	for _, name := range feedNames {
		v, ok := props[name]
		if !ok {
			continue
		}
		feed, isObject := v.(map[string]any)
		if !isObject {
			return invalid(prefix, name, "must be an object")
		}
		if u, ok := feed["url"]; ok {
			if _, isString := u.(string); !isString {
				return invalid(prefix, name+".url", "must be a string")
			}
		}
		if n, ok := feed["totalItems"]; ok {
			f, isNumber := asNumber(n)
			if !isNumber || f != math.Trunc(f) || f < 0 {
				return invalid(prefix, name+".totalItems", "must be a non-negative integer")
			}
		}
	}
	return nil
}

func validateMediaLink(v any, field string) error {
	m, ok := v.(map[string]any)
	if !ok {
		return &ValidationError{Field: field, Reason: "must be an object"}
	}
	u, ok := m["url"]
	if !ok {
		return &ValidationError{Field: field + ".url", Reason: "is required"}
	}
	if _, isString := u.(string); !isString {
		return &ValidationError{Field: field + ".url", Reason: "must be a string"}
	}
	for _, name := range []string{"width", "height", "duration"} {
		if n, ok := m[name]; ok {
			if _, isNumber := asNumber(n); !isNumber {
				return &ValidationError{Field: field + "." + name, Reason: "must be a number"}
			}
		}
	}
	return nil
}

func validateLinks(v any, field string) error {
	m, ok := v.(map[string]any)
	if !ok {
		return &ValidationError{Field: field, Reason: "must be an object"}
	}
	for rel, target := range m {
		t, ok := target.(map[string]any)
		if !ok {
			return &ValidationError{Field: field + "." + rel, Reason: "must be an object"}
		}
		if href, ok := t["href"]; ok {
			if _, isString := href.(string); !isString {
				return &ValidationError{Field: field + "." + rel + ".href", Reason: "must be a string"}
			}
		}
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func invalid(prefix, name, reason string) error {
	return &ValidationError{Field: prefix + name, Reason: reason}
}
