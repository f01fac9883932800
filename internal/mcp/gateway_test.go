package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jpl-au/nvimcp/internal/conn"
	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/nvim/nvimtest"
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/jpl-au/nvimcp/internal/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, lua bool) *Gateway {
	t.Helper()
	g := NewGateway(Options{
		Client:       nvim.Options{CallTimeout: 2 * time.Second, ConnectTimeout: time.Second},
		LuaDiscovery: lua,
		Discover:     func() []string { return []string{"/tmp/nvim.sock"} },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.Close(ctx)
	})
	return g
}

func connectTo(t *testing.T, g *Gateway, srv *nvimtest.Server) *conn.Connection {
	t.Helper()
	c, err := g.Connect(context.Background(), srv.Target(), transport.KindAuto)
	require.NoError(t, err)
	return c
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestConnectListBuffersDisconnect(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	srv.Buffers(map[string]any{"id": 1, "name": "a.txt", "line_count": 5})

	res, err := g.CallTool(context.Background(), "connect", map[string]any{"target": srv.Target()})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var connected connectResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &connected))
	assert.Len(t, connected.ConnectionID, conn.IDLength)
	assert.Equal(t, srv.Addr(), connected.Target)
	assert.Equal(t, transport.KindTCP, connected.Kind)

	res, err = g.CallTool(context.Background(), "list_buffers", map[string]any{"connection_id": connected.ConnectionID})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.JSONEq(t, `[{"id":1,"name":"a.txt","line_count":5}]`, text(t, res))

	res, err = g.CallTool(context.Background(), "disconnect", map[string]any{"connection_id": connected.ConnectionID})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.JSONEq(t, `{"connection_id":"`+connected.ConnectionID+`","target":"`+srv.Addr()+`"}`, text(t, res))
	assert.Equal(t, 0, g.Connections().Len())

	res, err = g.CallTool(context.Background(), "list_buffers", map[string]any{"connection_id": connected.ConnectionID})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), conn.ErrConnectionNotFound.Error())
}

func TestConnectSameTargetTwice(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	first := connectTo(t, g, srv)

	_, err := g.Connect(context.Background(), srv.Target(), transport.KindAuto)
	assert.ErrorIs(t, err, nvim.ErrAlreadyConnected)
	assert.Contains(t, err.Error(), first.ID)
	assert.Equal(t, 1, g.Connections().Len())
}

func TestConnectRequiresTarget(t *testing.T) {
	g := newGateway(t, false)
	_, err := g.Connect(context.Background(), "  ", transport.KindAuto)
	assert.ErrorIs(t, err, router.ErrInvalidParams)
}

func TestConnectUnreachable(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	target := srv.Target()
	srv.Close()

	_, err := g.Connect(context.Background(), target, transport.KindAuto)
	assert.Error(t, err)
	assert.Equal(t, 0, g.Connections().Len())
}

func TestConnectTCPTool(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)

	res, err := g.CallTool(context.Background(), "connect_tcp", map[string]any{"address": srv.Addr()})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	list := g.Connections().List()
	require.Len(t, list, 1)
	assert.Equal(t, transport.KindTCP, list[0].Kind)
}

func TestGetTargets(t *testing.T) {
	g := newGateway(t, false)
	res, err := g.CallTool(context.Background(), "get_targets", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"targets":["/tmp/nvim.sock"]}`, text(t, res))
}

func TestConnectionLostRemovesConnection(t *testing.T) {
	g := newGateway(t, true)
	srv := nvimtest.New(t)
	srv.HandleLua("get_registered_tools", func([]any) (any, error) {
		return []any{map[string]any{"name": "save_all"}}, nil
	})
	c := connectTo(t, g, srv)
	require.NotEmpty(t, g.Router().ConnectionTools(c.ID))

	srv.DropConnections()
	waitFor(t, func() bool { return g.Connections().Len() == 0 })
	waitFor(t, func() bool { return len(g.Router().ConnectionTools(c.ID)) == 0 })

	_, ok := g.Router().Describe("save_all")
	assert.False(t, ok)
}

func TestLuaToolsRegisteredAndCalled(t *testing.T) {
	g := newGateway(t, true)
	srv := nvimtest.New(t)
	srv.HandleLua("get_registered_tools", func([]any) (any, error) {
		return []any{map[string]any{
			"name":        "save_all",
			"description": "Write all buffers",
			"input_schema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"force": map[string]any{"type": "boolean"}},
			},
		}}, nil
	})
	var got []any
	srv.HandleLua("execute_tool", func(args []any) (any, error) {
		got = args
		return map[string]any{
			"content": []any{map[string]any{"type": "text", "text": "saved 3"}},
		}, nil
	})
	c := connectTo(t, g, srv)

	info, ok := g.Router().Describe("save_all")
	require.True(t, ok)
	assert.Equal(t, router.KindDynamic, info.Kind)
	assert.Equal(t, 1, info.Connections)

	res, err := g.CallTool(context.Background(), "save_all", map[string]any{
		"connection_id": c.ID,
		"force":         true,
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Equal(t, "saved 3", text(t, res))

	require.Len(t, got, 2)
	assert.Equal(t, "save_all", got[0])
	assert.JSONEq(t, `{"force":true}`, got[1].(string))

	_, err = g.CallTool(context.Background(), "save_all", map[string]any{"force": true})
	assert.ErrorIs(t, err, router.ErrInvalidParams)

	_, err = g.CallTool(context.Background(), "save_all", map[string]any{"connection_id": c.ID, "force": "yes"})
	assert.ErrorIs(t, err, router.ErrInvalidParams)
}

func TestLuaToolNameConflictSkipped(t *testing.T) {
	g := newGateway(t, true)
	srv := nvimtest.New(t)
	srv.HandleLua("get_registered_tools", func([]any) (any, error) {
		return []any{
			map[string]any{"name": "list_buffers"},
			map[string]any{"name": "format"},
		}, nil
	})
	c := connectTo(t, g, srv)

	tools := g.Router().ConnectionTools(c.ID)
	require.Len(t, tools, 1)
	assert.Equal(t, "format", tools[0].Name)

	info, ok := g.Router().Describe("list_buffers")
	require.True(t, ok)
	assert.Equal(t, router.KindStatic, info.Kind)
}

func TestLuaDiscoveryDisabled(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	srv.HandleLua("get_registered_tools", func([]any) (any, error) {
		return []any{map[string]any{"name": "save_all"}}, nil
	})
	c := connectTo(t, g, srv)
	assert.Empty(t, g.Router().ConnectionTools(c.ID))
}

func TestCallUnknownTool(t *testing.T) {
	g := newGateway(t, false)
	_, err := g.CallTool(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, router.ErrToolNotFound)
}

func TestExecLuaTool(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	var got []any
	srv.HandleLua("return 1 + ...", func(args []any) (any, error) {
		got = args
		return int64(42), nil
	})
	c := connectTo(t, g, srv)

	res, err := g.CallTool(context.Background(), "exec_lua", map[string]any{
		"connection_id": c.ID,
		"code":          "return 1 + ...",
		"args":          []any{float64(41)},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.JSONEq(t, `{"result":42}`, text(t, res))
	assert.Len(t, got, 1)

	res, err = g.CallTool(context.Background(), "exec_lua", map[string]any{"connection_id": c.ID})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "code is required")
}

func TestBufferDiagnosticsTool(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	c := connectTo(t, g, srv)

	srv.Notify(nvim.DiagnosticsMethod, map[string]any{
		"buffer_id": 2,
		"diagnostics": []any{map[string]any{
			"buffer_id": 2, "lnum": 4, "col": 0, "end_lnum": 4, "end_col": 3,
			"severity": 1, "message": "undefined: x", "source": "gopls",
		}},
	})
	waitFor(t, func() bool {
		d, _ := c.Client.BufferDiagnostics(2)
		return len(d) == 1
	})

	res, err := g.CallTool(context.Background(), "buffer_diagnostics", map[string]any{
		"connection_id": c.ID,
		"buffer_id":     float64(2),
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var diags []nvim.Diagnostic
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &diags))
	require.Len(t, diags, 1)
	assert.Equal(t, "undefined: x", diags[0].Message)

	res, err = g.CallTool(context.Background(), "buffer_diagnostics", map[string]any{
		"connection_id": c.ID,
		"buffer_id":     2.5,
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestBufferCodeActionsRejectsNegativeRange(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	c := connectTo(t, g, srv)

	res, err := g.CallTool(context.Background(), "buffer_code_actions", map[string]any{
		"connection_id":   c.ID,
		"lsp_client_name": "gopls",
		"buffer_id":       float64(1),
		"start_line":      float64(-1),
		"start_character": float64(0),
		"end_line":        float64(0),
		"end_character":   float64(0),
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "start_line")
}

func TestBufferCodeActionsRequiresDocument(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	c := connectTo(t, g, srv)

	res, err := g.CallTool(context.Background(), "buffer_code_actions", map[string]any{
		"connection_id":   c.ID,
		"lsp_client_name": "gopls",
		"start_line":      float64(0),
		"start_character": float64(0),
		"end_line":        float64(0),
		"end_character":   float64(0),
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestReadResources(t *testing.T) {
	g := newGateway(t, true)
	srv := nvimtest.New(t)
	srv.HandleLua("get_registered_tools", func([]any) (any, error) {
		return []any{map[string]any{"name": "save_all"}}, nil
	})
	c := connectTo(t, g, srv)
	ctx := context.Background()

	read := func(uri string) string {
		t.Helper()
		contents, err := g.ReadResource(ctx, uri)
		require.NoError(t, err)
		require.Len(t, contents, 1)
		tc, ok := contents[0].(mcp.TextResourceContents)
		require.True(t, ok)
		assert.Equal(t, uri, tc.URI)
		assert.Equal(t, "application/json", tc.MIMEType)
		return tc.Text
	}

	var conns []map[string]any
	require.NoError(t, json.Unmarshal([]byte(read(URIConnections)), &conns))
	require.Len(t, conns, 1)
	assert.Equal(t, c.ID, conns[0]["connection_id"])

	var overview ToolOverview
	require.NoError(t, json.Unmarshal([]byte(read(URIToolOverview)), &overview))
	assert.Len(t, overview.StaticTools, len(g.Router().Static()))
	for _, ti := range overview.StaticTools {
		assert.Equal(t, router.KindStatic, ti.Kind)
	}
	require.Contains(t, overview.ConnectionTools, c.ID)
	require.Len(t, overview.ConnectionTools[c.ID], 1)
	assert.Equal(t, "save_all", overview.ConnectionTools[c.ID][0].Name)

	var tools []router.ToolInfo
	require.NoError(t, json.Unmarshal([]byte(read("tools://"+c.ID)), &tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "save_all", tools[0].Name)

	assert.JSONEq(t, `{}`, read("diagnostics://"+c.ID+"/workspace"))
	assert.JSONEq(t, `[]`, read("diagnostics://"+c.ID+"/buffer/3"))
}

func TestReadResourceErrors(t *testing.T) {
	g := newGateway(t, false)
	srv := nvimtest.New(t)
	c := connectTo(t, g, srv)
	ctx := context.Background()

	tests := []struct {
		uri  string
		want error
	}{
		{"bogus://", ErrResourceNotFound},
		{"tools://nope", conn.ErrConnectionNotFound},
		{"diagnostics://nope/workspace", conn.ErrConnectionNotFound},
		{"diagnostics://" + c.ID, ErrResourceNotFound},
		{"diagnostics://" + c.ID + "/buffer/x", router.ErrInvalidParams},
		{"diagnostics://" + c.ID + "/buffer/0", router.ErrInvalidParams},
		{"diagnostics://" + c.ID + "/other", ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			_, err := g.ReadResource(ctx, tt.uri)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCloseDisconnectsAll(t *testing.T) {
	g := newGateway(t, false)
	a := connectTo(t, g, nvimtest.New(t))
	b := connectTo(t, g, nvimtest.New(t))
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, g.Close(context.Background()))
	assert.Equal(t, 0, g.Connections().Len())
	assert.False(t, a.Client.Connected())
	assert.False(t, b.Client.Connected())
}

func TestDisconnectUnknown(t *testing.T) {
	g := newGateway(t, false)
	_, err := g.Disconnect(context.Background(), "nope")
	assert.True(t, errors.Is(err, conn.ErrConnectionNotFound))
}
