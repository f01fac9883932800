package nvim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIdentifierValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  DocumentIdentifier
		ok   bool
	}{
		{"buffer", BufferDocument(4), true},
		{"relative", DocumentIdentifier{ProjectRelativePath: "main.go"}, true},
		{"absolute", DocumentIdentifier{AbsolutePath: "/src/main.go"}, true},
		{"none", DocumentIdentifier{}, false},
		{"two", DocumentIdentifier{BufferID: 1, AbsolutePath: "/x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidDocument)
			}
		})
	}
}

func TestLSPClients(t *testing.T) {
	c, srv := connected(t)
	srv.HandleLua("vim.lsp.get_clients()", func([]any) (any, error) {
		return []any{map[string]any{"id": 1, "name": "gopls", "root_dir": "/src"}}, nil
	})

	clients, err := c.LSPClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LSPClient{{ID: 1, Name: "gopls", RootDir: "/src"}}, clients)
}

func TestLSPCodeActionsPassesPositionsUnchanged(t *testing.T) {
	c, srv := connected(t)

	var args []any
	srv.HandleLua("textDocument/codeAction", func(a []any) (any, error) {
		args = a
		return []any{map[string]any{"title": "Organize imports", "kind": "source.organizeImports"}}, nil
	})

	rng := Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 10, Character: 3}}
	actions, err := c.LSPCodeActions(context.Background(), "gopls", BufferDocument(2), rng)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "Organize imports", actions[0].Title())

	require.Len(t, args, 4)
	assert.Equal(t, "gopls", args[0])
	assert.Equal(t, map[string]any{"buffer_id": int64(2)}, args[1])

	r, ok := args[2].(map[string]any)
	require.True(t, ok)
	end := r["end"].(map[string]any)
	assert.EqualValues(t, 10, end["line"])
	assert.EqualValues(t, 3, end["character"])
	start := r["start"].(map[string]any)
	assert.EqualValues(t, 0, start["line"])
}

func TestLSPCodeActionsRejectsBadDocument(t *testing.T) {
	c, srv := connected(t)
	_, err := c.LSPCodeActions(context.Background(), "gopls", DocumentIdentifier{}, Range{})
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Equal(t, 0, srv.Calls("nvim_exec_lua"))
}

func TestLSPCodeActionsEmpty(t *testing.T) {
	c, srv := connected(t)
	srv.HandleLua("textDocument/codeAction", func([]any) (any, error) { return map[string]any{}, nil })

	actions, err := c.LSPCodeActions(context.Background(), "gopls", BufferDocument(1), Range{})
	require.NoError(t, err)
	assert.NotNil(t, actions)
	assert.Empty(t, actions)
}

func TestLSPCodeActionsKeepEmptyFields(t *testing.T) {
	c, srv := connected(t)
	srv.HandleLua("textDocument/codeAction", func([]any) (any, error) {
		return []any{map[string]any{
			"title":   "Run fix",
			"command": map[string]any{"command": "go.fix", "arguments": []any{}},
			"data":    map[string]any{},
		}}, nil
	})

	actions, err := c.LSPCodeActions(context.Background(), "gopls", BufferDocument(1), Range{})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, map[string]any{}, actions[0]["data"])
	cmd, ok := actions[0]["command"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{}, cmd["arguments"])
}

func TestLSPResolveAndApply(t *testing.T) {
	c, srv := connected(t)
	edit := map[string]any{"changes": map[string]any{"file:///a.go": []any{}}}
	srv.HandleLua("codeAction/resolve", func(a []any) (any, error) {
		return map[string]any{"title": "Fix", "edit": edit}, nil
	})
	var applied []any
	srv.HandleLua("apply_workspace_edit", func(a []any) (any, error) {
		applied = a
		return true, nil
	})
	ctx := context.Background()

	resolved, err := c.LSPResolveCodeAction(ctx, "gopls", CodeAction{"title": "Fix"})
	require.NoError(t, err)
	assert.Equal(t, "Fix", resolved.Title())
	require.Contains(t, resolved, "edit")

	we := WorkspaceEdit(resolved["edit"].(map[string]any))
	require.NoError(t, c.LSPApplyWorkspaceEdit(ctx, "gopls", we))
	require.Len(t, applied, 2)
	assert.Equal(t, "gopls", applied[0])

	_, err = c.LSPResolveCodeAction(ctx, "gopls", nil)
	assert.ErrorIs(t, err, ErrAPI)
	assert.ErrorIs(t, c.LSPApplyWorkspaceEdit(ctx, "gopls", nil), ErrAPI)
}
