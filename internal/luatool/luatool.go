// Package luatool discovers tools that a Neovim instance registers through
// the nvim-mcp Lua plugin and exposes them as connection-scoped tools.
//
// Discovery is one nvim_exec_lua call made right after a connection is
// established. A Neovim without the plugin simply contributes no tools.
package luatool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/validate"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	discoverLua = `local ok, plugin = pcall(require, 'nvim-mcp')
if not ok or type(plugin.get_registered_tools) ~= 'function' then
  return vim.NIL
end
return plugin.get_registered_tools()`

	executeLua = `local name, args = ...
return require('nvim-mcp').execute_tool(name, vim.json.decode(args))`
)

var defaultSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Tool is one Lua-registered tool on one editor.
type Tool struct {
	name        string
	description string
	schema      json.RawMessage
}

// New returns a tool. An empty schema accepts any object.
func New(name, description string, schema json.RawMessage) *Tool {
	if len(schema) == 0 {
		schema = defaultSchema
	}
	return &Tool{name: name, description: description, schema: schema}
}

func (t *Tool) Name() string                 { return t.name }
func (t *Tool) Description() string          { return t.description }
func (t *Tool) InputSchema() json.RawMessage { return t.schema }

// Call executes the tool inside the editor. Errors reported by the tool
// become error results; only transport and editor failures are returned as
// errors.
func (t *Tool) Call(ctx context.Context, client *nvim.Client, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	v, err := client.ExecLua(ctx, executeLua, t.name, string(payload))
	if err != nil {
		return nil, err
	}
	return toResult(v), nil
}

type definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Discover asks the editor for its registered tools, sorted by name. A
// missing plugin or a failing registry yields no tools; only a broken
// connection is an error.
func Discover(ctx context.Context, client *nvim.Client, log *slog.Logger) ([]*Tool, error) {
	if log == nil {
		log = slog.Default()
	}
	v, err := client.ExecLua(ctx, discoverLua)
	if err != nil {
		if errors.Is(err, nvim.ErrAPI) {
			log.Warn("lua tool discovery failed", "error", err)
			return nil, nil
		}
		return nil, err
	}
	if v == nil {
		log.Debug("nvim-mcp plugin not loaded, no lua tools")
		return nil, nil
	}

	defs, err := parseDefinitions(v)
	if err != nil {
		log.Warn("lua tool registry malformed", "error", err)
		return nil, nil
	}
	tools := make([]*Tool, 0, len(defs))
	for _, d := range defs {
		if err := validate.ToolName(d.Name); err != nil {
			log.Warn("lua tool skipped", "error", err)
			continue
		}
		schema := d.InputSchema
		if string(schema) == "null" || string(schema) == "[]" {
			schema = nil
		}
		tools = append(tools, New(d.Name, d.Description, schema))
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].name < tools[j].name })
	log.Debug("lua tools discovered", "count", len(tools))
	return tools, nil
}

// parseDefinitions accepts either a list of definitions or a map keyed by
// tool name.
func parseDefinitions(v any) ([]definition, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case []any:
		var defs []definition
		if err := json.Unmarshal(raw, &defs); err != nil {
			return nil, err
		}
		return defs, nil
	case map[string]any:
		var byName map[string]definition
		if err := json.Unmarshal(raw, &byName); err != nil {
			return nil, err
		}
		defs := make([]definition, 0, len(byName))
		for name, d := range byName {
			if d.Name == "" {
				d.Name = name
			}
			defs = append(defs, d)
		}
		return defs, nil
	}
	return nil, fmt.Errorf("unexpected tool registry %T", v)
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
	Meta    struct {
		Error *struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data"`
		} `json:"error"`
	} `json:"_meta"`
}

// toResult converts a tool reply. Replies without a content list are
// returned as JSON text.
func toResult(v any) *mcp.CallToolResult {
	m, ok := v.(map[string]any)
	if !ok || (m["content"] == nil && m["isError"] == nil) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error())
		}
		return mcp.NewToolResultText(string(data))
	}

	var r response
	raw, _ := json.Marshal(m)
	if err := json.Unmarshal(raw, &r); err != nil {
		return mcp.NewToolResultError("malformed tool response: " + err.Error())
	}

	texts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "" || c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}

	if r.IsError || r.Meta.Error != nil {
		msg := strings.Join(texts, "\n")
		if r.Meta.Error != nil && r.Meta.Error.Message != "" {
			msg = r.Meta.Error.Message
		}
		if msg == "" {
			msg = "tool failed"
		}
		return mcp.NewToolResultError(msg)
	}

	res := &mcp.CallToolResult{Content: make([]mcp.Content, 0, len(texts))}
	for _, t := range texts {
		res.Content = append(res.Content, mcp.NewTextContent(t))
	}
	return res
}
