// lsp.go bridges requests to the language servers attached to the editor.
//
// Each operation is one nvim_exec_lua call that finds the named LSP client
// and issues a synchronous request through it. LSP payloads (code actions,
// workspace edits) are passed through as decoded JSON objects; only the
// parameters the gateway builds itself are typed.

package nvim

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a DocumentIdentifier does not name
// exactly one document.
var ErrInvalidDocument = errors.New("document identifier must set exactly one of buffer_id, project_relative_path, absolute_path")

// Position is a zero-based line and UTF-16 character offset, as in LSP.
type Position struct {
	Line      uint64 `json:"line"`
	Character uint64 `json:"character"`
}

// Range is a half-open LSP range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// DocumentIdentifier selects a document by buffer, by path relative to the
// editor's working directory, or by absolute path.
type DocumentIdentifier struct {
	BufferID            int64  `json:"buffer_id,omitempty"`
	ProjectRelativePath string `json:"project_relative_path,omitempty"`
	AbsolutePath        string `json:"absolute_path,omitempty"`
}

// BufferDocument identifies a document by buffer handle.
func BufferDocument(id int64) DocumentIdentifier {
	return DocumentIdentifier{BufferID: id}
}

// Validate checks that exactly one selector is set.
func (d DocumentIdentifier) Validate() error {
	n := 0
	if d.BufferID > 0 {
		n++
	}
	if d.ProjectRelativePath != "" {
		n++
	}
	if d.AbsolutePath != "" {
		n++
	}
	if n != 1 {
		return ErrInvalidDocument
	}
	return nil
}

// LSPClient is a language server attached to the editor.
type LSPClient struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	RootDir string `json:"root_dir,omitempty"`
}

// CodeAction is an LSP CodeAction or Command object.
type CodeAction map[string]any

// Title returns the action's title, or "" if absent.
func (a CodeAction) Title() string {
	s, _ := a["title"].(string)
	return s
}

// WorkspaceEdit is an LSP WorkspaceEdit object.
type WorkspaceEdit map[string]any

func (c *Client) timeoutMillis() int64 {
	return c.opts.CallTimeout.Milliseconds()
}

// LSPClients lists the language servers attached to the editor.
func (c *Client) LSPClients(ctx context.Context) ([]LSPClient, error) {
	var out []LSPClient
	if err := c.execLuaInto(ctx, &out, scriptLSPClients); err != nil {
		return nil, err
	}
	if out == nil {
		out = []LSPClient{}
	}
	return out, nil
}

// LSPCodeActions asks the named language server for the code actions
// available in rng of doc. Positions are sent exactly as given.
func (c *Client) LSPCodeActions(ctx context.Context, client string, doc DocumentIdentifier, rng Range) ([]CodeAction, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	var out []CodeAction
	if err := c.execLuaRaw(ctx, &out, scriptLSPCodeActions, client, doc, rng, c.timeoutMillis()); err != nil {
		return nil, err
	}
	if out == nil {
		out = []CodeAction{}
	}
	return out, nil
}

// LSPResolveCodeAction fills in the lazy parts (usually the edit) of a
// code action returned by LSPCodeActions.
func (c *Client) LSPResolveCodeAction(ctx context.Context, client string, action CodeAction) (CodeAction, error) {
	if len(action) == 0 {
		return nil, &APIError{Message: "code action is empty"}
	}
	var out CodeAction
	if err := c.execLuaRaw(ctx, &out, scriptLSPResolveCodeAction, client, map[string]any(action), c.timeoutMillis()); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &APIError{Message: fmt.Sprintf("%s returned no code action", client)}
	}
	return out, nil
}

// LSPApplyWorkspaceEdit applies edit in the editor using the offset
// encoding of the named language server.
func (c *Client) LSPApplyWorkspaceEdit(ctx context.Context, client string, edit WorkspaceEdit) error {
	if len(edit) == 0 {
		return &APIError{Message: "workspace edit is empty"}
	}
	_, err := c.ExecLua(ctx, scriptLSPApplyEdit, client, map[string]any(edit))
	return err
}
