// tools_connection.go implements the tools that open, close and find editor
// connections.

package mcp

import (
	"context"
	"time"

	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/jpl-au/nvimcp/internal/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

type connectResult struct {
	ConnectionID string            `json:"connection_id"`
	Target       string            `json:"target"`
	Kind         transport.Kind    `json:"kind"`
	ConnectedAt  time.Time         `json:"connected_at"`
	Tools        []router.ToolInfo `json:"tools"`
}

func (g *Gateway) getTargets(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targets := g.opts.Discover()
	if targets == nil {
		targets = []string{}
	}
	return jsonResult(map[string]any{"targets": targets})
}

func (g *Gateway) connect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := requireString(req, "target")
	if err != nil {
		return errorResult(err)
	}
	kind, err := transport.ParseKind(getString(req, "kind", ""))
	if err != nil {
		return errorResult(err)
	}
	return g.connectResult(ctx, target, kind)
}

func (g *Gateway) connectTCP(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireString(req, "address")
	if err != nil {
		return errorResult(err)
	}
	return g.connectResult(ctx, address, transport.KindTCP)
}

func (g *Gateway) connectResult(ctx context.Context, target string, kind transport.Kind) (*mcp.CallToolResult, error) {
	c, err := g.Connect(ctx, target, kind)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(connectResult{
		ConnectionID: c.ID,
		Target:       c.Target,
		Kind:         c.Kind,
		ConnectedAt:  c.ConnectedAt,
		Tools:        g.router.ConnectionTools(c.ID),
	})
}

func (g *Gateway) disconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req, router.ConnectionIDArg)
	if err != nil {
		return errorResult(err)
	}
	c, err := g.Disconnect(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"connection_id": c.ID, "target": c.Target})
}
