// tools_lsp.go implements the language server tools.
//
// Code actions are a two-step flow for the LLM: buffer_code_actions lists
// what a server offers, lsp_resolve_code_action fills in the edit of the
// chosen one, and lsp_apply_edit applies it. Action and edit objects pass
// through unchanged so nothing the server returns is lost.

package mcp

import (
	"context"
	"fmt"

	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

func (g *Gateway) lspClients(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	clients, err := c.Client.LSPClients(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(clients)
}

func (g *Gateway) bufferCodeActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	client, err := requireString(req, "lsp_client_name")
	if err != nil {
		return errorResult(err)
	}
	doc, err := documentArg(req)
	if err != nil {
		return errorResult(err)
	}
	rng, err := rangeArg(req)
	if err != nil {
		return errorResult(err)
	}
	actions, err := c.Client.LSPCodeActions(ctx, client, doc, rng)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(actions)
}

func (g *Gateway) lspResolveCodeAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	client, err := requireString(req, "lsp_client_name")
	if err != nil {
		return errorResult(err)
	}
	action, err := getObject(req, "code_action")
	if err != nil {
		return errorResult(err)
	}
	resolved, err := c.Client.LSPResolveCodeAction(ctx, client, nvim.CodeAction(action))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(resolved)
}

func (g *Gateway) lspApplyEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := g.connection(req)
	if err != nil {
		return errorResult(err)
	}
	client, err := requireString(req, "lsp_client_name")
	if err != nil {
		return errorResult(err)
	}
	edit, err := getObject(req, "workspace_edit")
	if err != nil {
		return errorResult(err)
	}
	if err := c.Client.LSPApplyWorkspaceEdit(ctx, client, nvim.WorkspaceEdit(edit)); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"applied": true})
}

func documentArg(req mcp.CallToolRequest) (nvim.DocumentIdentifier, error) {
	buf, _, err := getInt(req, "buffer_id")
	if err != nil {
		return nvim.DocumentIdentifier{}, err
	}
	doc := nvim.DocumentIdentifier{
		BufferID:            buf,
		ProjectRelativePath: getString(req, "project_relative_path", ""),
		AbsolutePath:        getString(req, "absolute_path", ""),
	}
	if err := doc.Validate(); err != nil {
		return doc, fmt.Errorf("%w: %v", router.ErrInvalidParams, err)
	}
	return doc, nil
}

func rangeArg(req mcp.CallToolRequest) (nvim.Range, error) {
	var vals [4]uint64
	for i, name := range []string{"start_line", "start_character", "end_line", "end_character"} {
		n, err := requireInt(req, name)
		if err != nil {
			return nvim.Range{}, err
		}
		if n < 0 {
			return nvim.Range{}, fmt.Errorf("%w: %s must not be negative", router.ErrInvalidParams, name)
		}
		vals[i] = uint64(n)
	}
	return nvim.Range{
		Start: nvim.Position{Line: vals[0], Character: vals[1]},
		End:   nvim.Position{Line: vals[2], Character: vals[3]},
	}, nil
}
