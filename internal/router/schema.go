package router

import "encoding/json"

// WithConnectionID returns schema with a required string connection_id
// property added. A schema that is not a JSON object is replaced by an
// object schema holding only connection_id.
func WithConnectionID(schema json.RawMessage) json.RawMessage {
	var obj map[string]any
	if len(schema) == 0 || json.Unmarshal(schema, &obj) != nil || obj == nil {
		obj = map[string]any{}
	}
	obj["type"] = "object"

	props, _ := obj["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	props[ConnectionIDArg] = map[string]any{
		"type":        "string",
		"description": "Connection returned by connect or connect_tcp",
	}
	obj["properties"] = props

	required := []any{ConnectionIDArg}
	if old, ok := obj["required"].([]any); ok {
		for _, r := range old {
			if r != ConnectionIDArg {
				required = append(required, r)
			}
		}
	}
	obj["required"] = required

	out, err := json.Marshal(obj)
	if err != nil {
		return schema
	}
	return out
}
