// tools_editor.go implements the buffer, Lua and diagnostics tools.

package mcp

import (
	"context"

	"github.com/jpl-au/nvimcp/internal/validate"
	"github.com/mark3labs/mcp-go/mcp"
)

func (g *Gateway) listBuffers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	bufs, err := c.Client.Buffers(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(bufs)
}

func (g *Gateway) execLua(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	code, err := requireString(req, "code")
	if err != nil {
		return errorResult(err)
	}
	if err := validate.LuaCode(code); err != nil {
		return errorResult(err)
	}
	args, err := getArray(req, "args")
	if err != nil {
		return errorResult(err)
	}
	v, err := c.Client.ExecLua(ctx, code, args...)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"result": v})
}

func (g *Gateway) bufferDiagnostics(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	buf, err := requireInt(req, "buffer_id")
	if err != nil {
		return errorResult(err)
	}
	diags, err := c.Client.BufferDiagnostics(buf)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(diags)
}
