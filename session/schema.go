package session

import (
	"bytes"
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Schema is the structured data a template is rendered against.
type Schema = map[string]any

// DeepMerge returns base with overlay merged into it. For a key present in
// both, two mappings are merged recursively and anything else is replaced by
// the overlay value. Neither argument is modified and the result shares no
// mutable values with them: nested values other than map[string]any and []any
// are copied through JSON, so typed maps such as map[string]string come back
// as map[string]any. A value JSON cannot represent is kept as is.
func DeepMerge(base, overlay Schema) Schema {
	merged := make(Schema, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = deepCopy(v)
	}
	for k, v := range overlay {
		src := deepCopy(v)
		if dst, ok := merged[k].(map[string]any); ok {
			if src, ok := src.(map[string]any); ok {
				merged[k] = DeepMerge(dst, src)
				continue
			}
		}
		merged[k] = src
	}
	return merged
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer, reflect.Struct, reflect.Interface:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		if err := decoder.Decode(&out); err != nil {
			return v
		}
		return out
	}
	return v
}

// toSchema normalizes a schema argument. Strings and byte slices are parsed as
// JSON, any other value goes through a JSON round trip so the result only holds
// JSON-native values. The result must be a JSON object.
func toSchema(v any) (Schema, error) {
	switch t := v.(type) {
	case nil:
		return Schema{}, nil
	case string:
		return decodeSchema([]byte(t))
	case []byte:
		return decodeSchema(t)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return decodeSchema(data)
}

func decodeSchema(data []byte) (Schema, error) {
	var schema Schema
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&schema); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	if schema == nil {
		return Schema{}, nil
	}
	return schema, nil
}
