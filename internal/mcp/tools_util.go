// tools_util.go provides helper functions for MCP tool parameter extraction.
//
// Separated to centralise the boilerplate of extracting typed parameters from
// MCP's generic argument map. Optional parameters fall back to a default when
// missing; required ones go through the require* helpers, which produce an
// error naming the parameter so the LLM can correct its call.

package mcp

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/jpl-au/nvimcp/internal/conn"
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getString extracts a string parameter, returning def if it is missing or
// not a string.
func getString(req mcp.CallToolRequest, name, def string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return def
}

// requireString extracts a non-empty string parameter.
func requireString(req mcp.CallToolRequest, name string) (string, error) {
	v, ok := arguments(req)[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s is required", router.ErrInvalidParams, name)
	}
	return v, nil
}

// getInt extracts an integer parameter.
//
// JSON numbers are decoded as float64 in Go's encoding/json, so we must type
// assert to float64 first and then convert. Fractional values are rejected
// rather than truncated, since a buffer or line number of 2.5 is a mistake.
func getInt(req mcp.CallToolRequest, name string) (int64, bool, error) {
	raw, ok := arguments(req)[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, true, fmt.Errorf("%w: %s must be an integer", router.ErrInvalidParams, name)
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s must be an integer", router.ErrInvalidParams, name)
		}
		return n, true, nil
	}
	return 0, true, fmt.Errorf("%w: %s must be a number", router.ErrInvalidParams, name)
}

// requireInt extracts a required integer parameter.
func requireInt(req mcp.CallToolRequest, name string) (int64, error) {
	v, ok, err := getInt(req, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", router.ErrInvalidParams, name)
	}
	return v, nil
}

// getObject extracts an object parameter. LLM clients sometimes send nested
// objects as JSON strings, so a string holding an object is decoded too.
func getObject(req mcp.CallToolRequest, name string) (map[string]any, error) {
	switch v := arguments(req)[name].(type) {
	case map[string]any:
		return v, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil && m != nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be an object", router.ErrInvalidParams, name)
}

// getArray extracts an optional array parameter.
func getArray(req mcp.CallToolRequest, name string) ([]any, error) {
	raw, ok := arguments(req)[name]
	if !ok || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array", router.ErrInvalidParams, name)
	}
	return arr, nil
}

// connection resolves the connection_id parameter.
func (g *Gateway) connection(req mcp.CallToolRequest) (*conn.Connection, error) {
	id, err := requireString(req, router.ConnectionIDArg)
	if err != nil {
		return nil, err
	}
	return g.conns.Get(id)
}

// jsonResult serialises any value as pretty-printed JSON and wraps it in an
// MCP text result. LLMs parse indented output more reliably than compact
// JSON.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports a tool failure to the LLM.
func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
