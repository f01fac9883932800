package msgrpc

import (
	"fmt"
	"math"
	"strconv"
)

// ToJSON converts a decoded msgpack value into one that encoding/json
// renders faithfully: nil, bool, int64, uint64, float64, string, []any or
// map[string]any. Binary and extension values have no JSON form and fail
// with ErrUnsupportedValue. Integer map keys become their decimal string
// (Lua tables with numeric keys arrive that way); any other non-string key
// is rejected.
func ToJSON(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
		return x, nil
	case int, int8, int16, int32, uint, uint8, uint16, uint32:
		n, _ := toInt64(x)
		if u, ok := x.(uint); ok {
			n = int64(u)
		}
		return n, nil
	case float32:
		return float64(x), nil
	case []byte:
		return nil, fmt.Errorf("%w: binary data (%d bytes)", ErrUnsupportedValue, len(x))
	case handle:
		return nil, fmt.Errorf("%w: extension type %s", ErrUnsupportedValue, x.extName())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, err := ToJSON(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			c, err := ToJSON(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			key, err := mapKey(k)
			if err != nil {
				return nil, err
			}
			c, err := ToJSON(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func mapKey(k any) (string, error) {
	switch key := k.(type) {
	case string:
		return key, nil
	case uint64:
		return strconv.FormatUint(key, 10), nil
	}
	if n, ok := toInt64(k); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("%w: map key of type %T", ErrUnsupportedValue, k)
}
