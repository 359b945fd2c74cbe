package docstore

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Transform is a field value resolved by the store at commit time.
type Transform interface {
	apply(old any, now time.Time) any
}

type serverTimestamp struct{}

func (serverTimestamp) apply(_ any, now time.Time) any { return now }

// ServerTimestamp resolves to the commit time of the write that carries it.
var ServerTimestamp Transform = serverTimestamp{}

type increment struct{ n int64 }

func (i increment) apply(old any, _ time.Time) any {
	switch v := old.(type) {
	case int64:
		return v + i.n
	case float64:
		return v + float64(i.n)
	default:
		return i.n
	}
}

// Increment adds n to the stored numeric value. A missing or non-numeric
// value counts as zero.
func Increment(n int64) Transform {
	return increment{n: n}
}

func normalizeFields(in Fields) (Fields, error) {
	out := make(Fields, len(in))
	for k, v := range in {
		if k == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidValue)
		}
		if t, ok := v.(Transform); ok {
			out[k] = t
			continue
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x), nil
	case time.Time:
		return x.UTC(), nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case Fields:
		return normalizeNested(x)
	case map[string]any:
		return normalizeNested(x)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}

func normalizeUint(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, u)
	}
	return int64(u), nil
}

func normalizeNested(in map[string]any) (any, error) {
	out := make(Fields, len(in))
	for k, v := range in {
		if _, ok := v.(Transform); ok {
			return nil, fmt.Errorf("%w: transforms are only allowed on top-level fields", ErrInvalidValue)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	case []any:
		return 5
	default:
		return 6
	}
}

// compareValues orders normalized values: null < bool < number < timestamp
// < string < array < map. Strings compare by UTF-8 bytes.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpInt64(x, y)
		}
		return cmpFloat(float64(x), b.(float64))
	case float64:
		switch y := b.(type) {
		case int64:
			return cmpFloat(x, float64(y))
		default:
			return cmpFloat(x, y.(float64))
		}
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		default:
			return 0
		}
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compareValues(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(x), len(y))
	default:
		return compareMaps(asMap(a), asMap(b))
	}
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case Fields:
		return m
	case map[string]any:
		return m
	}
	return nil
}

func compareMaps(a, b map[string]any) int {
	ka, kb := sortedKeys(a), sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if ka[i] != kb[i] {
			if ka[i] < kb[i] {
				return -1
			}
			return 1
		}
		if c := compareValues(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(ka), len(kb))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case Fields:
		return cloneFields(x)
	case map[string]any:
		return cloneFields(x)
	default:
		return v
	}
}

func cloneFields(in map[string]any) Fields {
	if in == nil {
		return nil
	}
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}
