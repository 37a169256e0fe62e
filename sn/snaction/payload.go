package snaction

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// BuildPayload encodes field assignments as a JSON object.
//
// Keys containing dots address nested objects,
// so {"pose.x": 1, "pose.y": 2} encodes as {"pose":{"x":1,"y":2}}.
// Assigning both a path and one of its prefixes is an error.
//
// A nil or empty map encodes as an empty object.
func BuildPayload(fields map[string]any) ([]byte, error) {
	root := make(map[string]any, len(fields))

	// Sorted for deterministic conflict reporting.
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if err := assign(root, k, fields[k]); err != nil {
			return nil, err
		}
	}

	b, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return b, nil
}

func assign(root map[string]any, path string, v any) error {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("field %q has an empty path element", path)
		}
	}

	cur := root
	for i, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			m := make(map[string]any)
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q conflicts with scalar field %q", path, strings.Join(parts[:i+1], "."))
		}
		cur = m
	}

	last := parts[len(parts)-1]
	if existing, ok := cur[last]; ok {
		em, eok := existing.(map[string]any)
		vm, vok := v.(map[string]any)
		if !eok || !vok {
			return fmt.Errorf("field %q is assigned more than once", path)
		}
		// Merge an explicit object into one built from dotted paths.
		for k, vv := range vm {
			if _, dup := em[k]; dup {
				return fmt.Errorf("field %q is assigned more than once", path+"."+k)
			}
			em[k] = cloneValue(vv)
		}
		return nil
	}
	cur[last] = cloneValue(v)
	return nil
}

// cloneValue copies nested objects so that building a payload
// never mutates the caller's field map.
func cloneValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, vv := range m {
		out[k] = cloneValue(vv)
	}
	return out
}
