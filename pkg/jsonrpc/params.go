package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Params is a parsed, untyped view over a request's params object;
// positional (array) params are rejected by ParseParams. It never silently collapses a missing field to nil or zero
// value — callers get an explicit error instead (spec.md §9, "Dynamic
// parameter shapes").
type Params struct {
	raw map[string]any
}

// ParseParams decodes a request's raw params into a Params view. Absent
// params decode to an empty object view.
func ParseParams(raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		return Params{raw: map[string]any{}}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Params{}, fmt.Errorf("params must be a JSON object: %w", err)
	}
	return Params{raw: m}, nil
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.raw[key]
	return ok
}

// Raw returns the underlying map, e.g. for forwarding to a proxy body.
func (p Params) Raw() map[string]any {
	return p.raw
}

// String returns a required string field.
func (p Params) String(key string) (string, error) {
	v, ok := p.raw[key]
	if !ok {
		return "", fmt.Errorf("missing required param %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %q must be a string", key)
	}
	return s, nil
}

// OptionalString returns a string field, or def if absent.
func (p Params) OptionalString(key, def string) string {
	v, ok := p.raw[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Number returns a required numeric field.
func (p Params) Number(key string) (float64, error) {
	v, ok := p.raw[key]
	if !ok {
		return 0, fmt.Errorf("missing required param %q", key)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("param %q must be a number", key)
	}
	return n, nil
}

// StringSlice returns a required array-of-string field.
func (p Params) StringSlice(key string) ([]string, error) {
	v, ok := p.raw[key]
	if !ok {
		return nil, fmt.Errorf("missing required param %q", key)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be an array", key)
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("param %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
