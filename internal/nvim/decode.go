package nvim

import (
	"encoding/json"
)

// decode copies a JSON-compatible value into dst through encoding/json.
// Lua has one table type, so an empty result may arrive as either [] or {};
// both are treated as absent to let them land in slices, maps and structs.
func decode(v any, dst any) error {
	b, err := json.Marshal(emptyToNil(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// decodeRaw is decode for pass-through payloads such as LSP objects. Only an
// empty top-level table is treated as absent; nested values keep their shape
// so they can be sent back to the editor unchanged.
func decodeRaw(v any, dst any) error {
	if isEmptyTable(v) {
		v = nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func isEmptyTable(v any) bool {
	switch x := v.(type) {
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func emptyToNil(v any) any {
	switch x := v.(type) {
	case []any:
		if len(x) == 0 {
			return nil
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = emptyToNil(e)
		}
		return out
	case map[string]any:
		if len(x) == 0 {
			return nil
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = emptyToNil(e)
		}
		return out
	}
	return v
}
