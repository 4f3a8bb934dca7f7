package services

import (
	"encoding/json"
	"fmt"
)

// Flatten turns a decoded JSON object into dotted paths.
//
//	{"artist": {"name": "A"}}            -> "artist.name": "A"
//	{"artists": [{"name": "A"}, {...}]}  -> "artists[].name": []any{"A", ...}
//	{"tags": ["x", "y"]}                 -> "tags[]": []any{"x", "y"}
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			flattenInto(out, join(prefix, k), val)
		}
	case []any:
		key := prefix + "[]"
		if _, ok := out[key]; !ok && len(x) == 0 {
			out[key] = []any{}
		}
		for _, item := range x {
			obj, ok := item.(map[string]any)
			if !ok {
				out[key] = appendAny(out[key], item)
				continue
			}
			for sub, val := range Flatten(obj) {
				out[key+"."+sub] = appendAny(out[key+"."+sub], val)
			}
		}
	default:
		out[prefix] = x
	}
}

func appendAny(existing any, v any) []any {
	list, _ := existing.([]any)
	return append(list, v)
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// flattenValue round-trips a typed value through JSON and flattens the result.
func flattenValue(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode track: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	return Flatten(obj), nil
}
