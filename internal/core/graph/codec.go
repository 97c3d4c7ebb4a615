package graph

import (
	"encoding/json"
	"fmt"
)

// linkKey is the single field of an encoded Link.
const linkKey = "#"

// Encode serializes a node value to JSON. Links are written as {"#": path}.
// A nil value encodes as JSON null.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	out := make(map[string]any, len(v))
	for k, val := range v {
		if l, ok := val.(Link); ok {
			out[k] = map[string]string{linkKey: l.Path}
			continue
		}
		out[k] = val
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	return data, nil
}

// Decode parses a value written by Encode.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	for k, val := range raw {
		m, ok := val.(map[string]any)
		if !ok || len(m) != 1 {
			continue
		}
		if p, ok := m[linkKey].(string); ok {
			raw[k] = Link{Path: p}
		}
	}
	return raw, nil
}
