package mcp

import (
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

// connectionID is the argument option shared by every per-connection tool.
func connectionID() mcp.ToolOption {
	return mcp.WithString(router.ConnectionIDArg, mcp.Required(),
		mcp.Description("Connection returned by connect or connect_tcp"))
}

// staticTools defines the tools served for every connection.
func (g *Gateway) staticTools() []router.StaticTool {
	return []router.StaticTool{
		// Connections
		{
			Tool: mcp.NewTool("get_targets",
				mcp.WithDescription("List Neovim sockets and named pipes found on this machine that can be passed to connect"),
			),
			Handler: g.getTargets,
		},
		{
			Tool: mcp.NewTool("connect",
				mcp.WithDescription("Connect to a Neovim instance by socket path, named pipe or tcp:// address. Returns the connection_id used by every other tool."),
				mcp.WithString("target", mcp.Required(), mcp.Description("Socket path, named pipe, or host:port")),
				mcp.WithString("kind", mcp.Description("auto (default), unix, namedpipe or tcp"),
					mcp.Enum("auto", "unix", "namedpipe", "tcp")),
			),
			Handler: g.connect,
		},
		{
			Tool: mcp.NewTool("connect_tcp",
				mcp.WithDescription("Connect to a Neovim instance listening on TCP (nvim --listen host:port)"),
				mcp.WithString("address", mcp.Required(), mcp.Description("host:port")),
			),
			Handler: g.connectTCP,
		},
		{
			Tool: mcp.NewTool("disconnect",
				mcp.WithDescription("Close a connection and remove its tools"),
				connectionID(),
			),
			Handler: g.disconnect,
		},

		// Editor
		{
			Tool: mcp.NewTool("list_buffers",
				mcp.WithDescription("List loaded buffers with their id, name and line count"),
				connectionID(),
			),
			Handler: g.listBuffers,
		},
		{
			Tool: mcp.NewTool("exec_lua",
				mcp.WithDescription("Run Lua inside Neovim and return the result as JSON. Arguments are available to the code as '...'."),
				connectionID(),
				mcp.WithString("code", mcp.Required(), mcp.Description("Lua chunk, e.g. 'return vim.api.nvim_get_current_buf()'")),
				mcp.WithArray("args", mcp.Description("Values passed to the chunk as '...'")),
			),
			Handler: g.execLua,
		},

		// Diagnostics and LSP
		{
			Tool: mcp.NewTool("buffer_diagnostics",
				mcp.WithDescription("Get the current diagnostics of a buffer"),
				connectionID(),
				mcp.WithNumber("buffer_id", mcp.Required(), mcp.Description("Buffer id from list_buffers")),
			),
			Handler: g.bufferDiagnostics,
		},
		{
			Tool: mcp.NewTool("lsp_clients",
				mcp.WithDescription("List the language server clients attached in Neovim"),
				connectionID(),
			),
			Handler: g.lspClients,
		},
		{
			Tool: mcp.NewTool("buffer_code_actions",
				mcp.WithDescription("Request code actions for a range of a document from a language server. Positions are zero-based."),
				connectionID(),
				mcp.WithString("lsp_client_name", mcp.Required(), mcp.Description("Client name from lsp_clients")),
				mcp.WithNumber("buffer_id", mcp.Description("Document by buffer id")),
				mcp.WithString("project_relative_path", mcp.Description("Document by path relative to the editor's working directory")),
				mcp.WithString("absolute_path", mcp.Description("Document by absolute path")),
				mcp.WithNumber("start_line", mcp.Required()),
				mcp.WithNumber("start_character", mcp.Required()),
				mcp.WithNumber("end_line", mcp.Required()),
				mcp.WithNumber("end_character", mcp.Required()),
			),
			Handler: g.bufferCodeActions,
		},
		{
			Tool: mcp.NewTool("lsp_resolve_code_action",
				mcp.WithDescription("Resolve a code action returned by buffer_code_actions so that it carries its edit"),
				connectionID(),
				mcp.WithString("lsp_client_name", mcp.Required()),
				mcp.WithObject("code_action", mcp.Required(), mcp.Description("Code action object as returned")),
			),
			Handler: g.lspResolveCodeAction,
		},
		{
			Tool: mcp.NewTool("lsp_apply_edit",
				mcp.WithDescription("Apply an LSP workspace edit in Neovim"),
				connectionID(),
				mcp.WithString("lsp_client_name", mcp.Required()),
				mcp.WithObject("workspace_edit", mcp.Required(), mcp.Description("WorkspaceEdit object, e.g. the edit of a resolved code action")),
			),
			Handler: g.lspApplyEdit,
		},
	}
}
