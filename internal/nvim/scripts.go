package nvim

import (
	"embed"
)

//go:embed lua/*.lua
var luaFS embed.FS

func mustScript(name string) string {
	b, err := luaFS.ReadFile("lua/" + name)
	if err != nil {
		panic("nvim: missing embedded script " + name)
	}
	return string(b)
}

// Scripts that address a document share the lsp_document.lua prelude.
var (
	scriptListBuffers          = mustScript("list_buffers.lua")
	scriptSetupDiagnostics     = mustScript("setup_diagnostics.lua")
	scriptLSPClients           = mustScript("lsp_clients.lua")
	scriptLSPCodeActions       = mustScript("lsp_document.lua") + mustScript("lsp_code_actions.lua")
	scriptLSPResolveCodeAction = mustScript("lsp_resolve_code_action.lua")
	scriptLSPApplyEdit         = mustScript("lsp_apply_edit.lua")
)
