package events

import (
	"encoding/json"
	"sort"
	"strconv"

	"gorm.io/datatypes"
)

// ValueKind tags a decoded payload node.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindObject
	KindArray
)

// Value is one node of a decoded payload tree. Payloads have no fixed
// schema per event name, so the export engine walks this structure
// generically instead of assuming fields.
type Value struct {
	Kind   ValueKind
	Scalar interface{}
	Object map[string]Value
	Array  []interface{}
}

func parseValue(raw interface{}) Value {
	switch v := raw.(type) {
	case map[string]interface{}:
		children := make(map[string]Value, len(v))
		for key, child := range v {
			children[key] = parseValue(child)
		}
		return Value{Kind: KindObject, Object: children}
	case []interface{}:
		return Value{Kind: KindArray, Array: v}
	default:
		return Value{Kind: KindScalar, Scalar: v}
	}
}

// renderLeaf turns a leaf node into its CSV cell form. Arrays and any
// other non-scalar leaf stringify to single-line compact JSON.
func renderLeaf(v Value) string {
	switch v.Kind {
	case KindScalar:
		switch s := v.Scalar.(type) {
		case nil:
			return ""
		case string:
			return s
		case bool:
			return strconv.FormatBool(s)
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case json.Number:
			return s.String()
		default:
			encoded, err := json.Marshal(s)
			if err != nil {
				return ""
			}
			return string(encoded)
		}
	default:
		encoded, err := json.Marshal(v.Array)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func flattenInto(out map[string]string, prefix string, v Value) {
	if v.Kind != KindObject {
		out[prefix] = renderLeaf(v)
		return
	}
	for key, child := range v.Object {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		flattenInto(out, path, child)
	}
}

// FlattenPayload decodes a stored payload and returns its leaf values
// keyed by dot-delimited path. Top-level keys in exclude are skipped;
// those are promoted to fixed export columns.
func FlattenPayload(raw datatypes.JSON, exclude map[string]struct{}) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for key, child := range decoded {
		if _, skip := exclude[key]; skip {
			continue
		}
		flattenInto(out, key, parseValue(child))
	}
	return out, nil
}

// FlattenPaths returns the sorted set of leaf paths present in a payload,
// with excluded top-level keys skipped.
func FlattenPaths(raw datatypes.JSON, exclude map[string]struct{}) ([]string, error) {
	flat, err := FlattenPayload(raw, exclude)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(flat))
	for path := range flat {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// TopLevelString extracts a top-level payload key as its cell form, or ""
// when absent or not a leaf.
func TopLevelString(raw datatypes.JSON, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ""
	}
	child, ok := decoded[key]
	if !ok {
		return ""
	}
	v := parseValue(child)
	if v.Kind == KindObject {
		return ""
	}
	return renderLeaf(v)
}
