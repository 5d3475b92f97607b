package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hupe1980/brandmesh/core"
)

// Apply returns a copy of data with u applied. Values are normalized through
// JSON first so comparisons behave the same for every backend.
func Apply(data map[string]any, u Update) (map[string]any, error) {
	out, err := Normalize(data)
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = map[string]any{}
	}

	set, err := Normalize(u.Set)
	if err != nil {
		return nil, err
	}

	for k, v := range set {
		out[k] = v
	}

	for field, values := range u.ArrayUnion {
		var existing []any
		switch cur := out[field].(type) {
		case nil:
		case []any:
			existing = cur
		default:
			return nil, fmt.Errorf("%w: field %q is %T, not an array", core.ErrValidation, field, cur)
		}

		for _, raw := range values {
			v, err := normalizeValue(raw)
			if err != nil {
				return nil, err
			}

			if !containsValue(existing, v) {
				existing = append(existing, v)
			}
		}

		if existing == nil {
			existing = []any{}
		}

		out[field] = existing
	}

	return out, nil
}

// CheckVersion returns ErrConflict when expected is set and differs from current.
// A current version of zero means the document does not exist.
func CheckVersion(key Key, expected *int64, current int64) error {
	if expected != nil && *expected != current {
		return fmt.Errorf("%w: %s at version %d, expected %d", core.ErrConflict, key, current, *expected)
	}

	return nil
}

// NotFound builds the error returned for missing documents.
func NotFound(key Key) error {
	return fmt.Errorf("%w: %s", core.ErrNotFound, key)
}

// Normalize deep-copies data into plain JSON types (map[string]any, []any,
// float64, string, bool, nil).
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}

	return out, nil
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}

	return out, nil
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}

	return false
}

// Encode converts a typed value into document data.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}

	return out, nil
}

// Decode converts document data into a typed value.
func Decode(data map[string]any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}

	return nil
}

// Raw returns the JSON encoding of document data.
func Raw(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}
