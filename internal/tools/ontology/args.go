// Package ontology provides the two tool catalogs the agent loop hands to
// the model: the build catalog that mutates the entities index, and the
// retrieval catalog that reads the index and queries the compiled graph.
package ontology

import (
	"fmt"

	"ontoforge/internal/index"
	"ontoforge/internal/types"
)

// argString extracts a required string argument.
func argString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, raw)
	}
	if s == "" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return s, nil
}

// argStringSlice extracts an optional list-of-strings argument. A missing
// key yields nil.
func argStringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		if typed, ok := raw.([]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("argument %q must be an array of strings, got %T", key, raw)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q element %d must be a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// argPairs extracts an optional list of [property, value] pairs.
func argPairs(args map[string]any, key string) ([]index.Assertion, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array of [property, value] pairs, got %T", key, raw)
	}
	out := make([]index.Assertion, 0, len(items))
	for i, item := range items {
		pair, ok := item.([]interface{})
		if !ok {
			return nil, fmt.Errorf("argument %q element %d must be a [property, value] pair, got %T", key, i, item)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("argument %q element %d must have exactly 2 elements, got %d", key, i, len(pair))
		}
		prop, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("argument %q element %d: property must be a string, got %T", key, i, pair[0])
		}
		value, ok := pair[1].(string)
		if !ok {
			return nil, fmt.Errorf("argument %q element %d: value must be a string, got %T", key, i, pair[1])
		}
		out = append(out, index.Assertion{Property: prop, Value: value})
	}
	return out, nil
}

// argBool extracts an optional bool argument, defaulting when absent.
// Models sometimes send booleans as strings, so "true"/"false" and the
// /true and /false atom forms are accepted too.
func argBool(args map[string]any, key string, def bool) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	b, ok := types.ExtractBool(raw)
	if !ok {
		return false, fmt.Errorf("argument %q must be a boolean, got %T", key, raw)
	}
	return b, nil
}
