package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// taggedValue keeps the type of each value across a JSON round trip, so
// integers stay integers and timestamps stay timestamps.
type taggedValue struct {
	Null   bool                   `json:"n,omitempty"`
	Bool   *bool                  `json:"b,omitempty"`
	Int    *int64                 `json:"i,omitempty"`
	Float  *float64               `json:"f,omitempty"`
	String *string                `json:"s,omitempty"`
	Time   *time.Time             `json:"t,omitempty"`
	Array  []taggedValue          `json:"a,omitempty"`
	Map    map[string]taggedValue `json:"m,omitempty"`
	Empty  string                 `json:"e,omitempty"`
}

// Empty marks an empty array or map, which omitempty would otherwise drop.
const (
	emptyArray = "a"
	emptyMap   = "m"
)

func encodeFields(data Fields) (string, error) {
	tagged := make(map[string]taggedValue, len(data))
	for k, v := range data {
		tv, err := encodeValue(v)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", k, err)
		}
		tagged[k] = tv
	}
	raw, err := json.Marshal(tagged)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeFields(raw string) (Fields, error) {
	var tagged map[string]taggedValue
	if err := json.Unmarshal([]byte(raw), &tagged); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	out := make(Fields, len(tagged))
	for k, tv := range tagged {
		v, err := decodeValue(tv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func encodeValue(v any) (taggedValue, error) {
	switch x := v.(type) {
	case nil:
		return taggedValue{Null: true}, nil
	case bool:
		return taggedValue{Bool: &x}, nil
	case int64:
		return taggedValue{Int: &x}, nil
	case float64:
		return taggedValue{Float: &x}, nil
	case string:
		return taggedValue{String: &x}, nil
	case time.Time:
		return taggedValue{Time: &x}, nil
	case []any:
		if len(x) == 0 {
			return taggedValue{Empty: emptyArray}, nil
		}
		arr := make([]taggedValue, len(x))
		for i, e := range x {
			tv, err := encodeValue(e)
			if err != nil {
				return taggedValue{}, err
			}
			arr[i] = tv
		}
		return taggedValue{Array: arr}, nil
	case Fields, map[string]any:
		m := asMap(x)
		if len(m) == 0 {
			return taggedValue{Empty: emptyMap}, nil
		}
		out := make(map[string]taggedValue, len(m))
		for k, e := range m {
			tv, err := encodeValue(e)
			if err != nil {
				return taggedValue{}, err
			}
			out[k] = tv
		}
		return taggedValue{Map: out}, nil
	}
	return taggedValue{}, fmt.Errorf("%w: %T", ErrInvalidValue, v)
}

func decodeValue(tv taggedValue) (any, error) {
	switch {
	case tv.Null:
		return nil, nil
	case tv.Bool != nil:
		return *tv.Bool, nil
	case tv.Int != nil:
		return *tv.Int, nil
	case tv.Float != nil:
		return *tv.Float, nil
	case tv.String != nil:
		return *tv.String, nil
	case tv.Time != nil:
		return tv.Time.UTC(), nil
	case tv.Array != nil:
		out := make([]any, len(tv.Array))
		for i, e := range tv.Array {
			v, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case tv.Map != nil:
		out := make(Fields, len(tv.Map))
		for k, e := range tv.Map {
			v, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case tv.Empty == emptyArray:
		return []any{}, nil
	case tv.Empty == emptyMap:
		return Fields{}, nil
	}
	return nil, fmt.Errorf("%w: untagged value", ErrInvalidValue)
}
