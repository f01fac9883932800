package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/jpl-au/nvimcp/internal/conn"
	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name   string
	schema string
	calls  []map[string]any
	mu     sync.Mutex
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) InputSchema() json.RawMessage {
	if f.schema == "" {
		return nil
	}
	return json.RawMessage(f.schema)
}

func (f *fakeTool) Call(_ context.Context, _ *nvim.Client, args map[string]any) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return mcp.NewToolResultText("dynamic " + f.name), nil
}

type clients map[string]*nvim.Client

func (c clients) Client(id string) (*nvim.Client, error) {
	if cl, ok := c[id]; ok {
		return cl, nil
	}
	return nil, conn.ErrConnectionNotFound
}

func staticTool(name string) StaticTool {
	return StaticTool{
		Tool: mcp.NewTool(name, mcp.WithDescription("static "+name)),
		Handler: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("static " + req.Params.Name), nil
		},
	}
}

func newRouter() *Router {
	cl := clients{"c1": nvim.New(nvim.Options{}), "c2": nvim.New(nvim.Options{})}
	return New(cl, staticTool("list_buffers"), staticTool("exec_lua"))
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestNewPanicsOnDuplicateStatic(t *testing.T) {
	assert.Panics(t, func() {
		New(clients{}, staticTool("a"), staticTool("a"))
	})
}

func TestRegisterRejectsStaticName(t *testing.T) {
	r := newRouter()
	var changes []string
	r.OnChange(func(name string) { changes = append(changes, name) })

	err := r.Register("c1", &fakeTool{name: "exec_lua"})
	assert.ErrorIs(t, err, ErrNameConflict)
	assert.Empty(t, r.ConnectionTools("c1"))
	assert.Empty(t, changes)
}

func TestDispatchStatic(t *testing.T) {
	r := newRouter()
	res, err := r.Dispatch(context.Background(), "list_buffers", map[string]any{"connection_id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, "static list_buffers", resultText(t, res))

	_, err = r.Dispatch(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestDispatchDynamic(t *testing.T) {
	r := newRouter()
	tool := &fakeTool{name: "format"}
	require.NoError(t, r.Register("c1", tool))
	ctx := context.Background()

	res, err := r.Dispatch(ctx, "format", map[string]any{"connection_id": "c1", "x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "dynamic format", resultText(t, res))
	require.Len(t, tool.calls, 1)
	assert.Equal(t, map[string]any{"x": 1.0}, tool.calls[0], "connection_id is stripped")

	_, err = r.Dispatch(ctx, "format", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = r.Dispatch(ctx, "format", map[string]any{"connection_id": "ghost"})
	assert.ErrorIs(t, err, conn.ErrConnectionNotFound)

	_, err = r.Dispatch(ctx, "format", map[string]any{"connection_id": "c2"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestDispatchValidatesSchema(t *testing.T) {
	r := newRouter()
	tool := &fakeTool{
		name:   "rename",
		schema: `{"type":"object","properties":{"to":{"type":"string"}},"required":["to"]}`,
	}
	require.NoError(t, r.Register("c1", tool))
	ctx := context.Background()

	_, err := r.Dispatch(ctx, "rename", map[string]any{"connection_id": "c1"})
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = r.Dispatch(ctx, "rename", map[string]any{"connection_id": "c1", "to": 3.0})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Empty(t, tool.calls)

	_, err = r.Dispatch(ctx, "rename", map[string]any{"connection_id": "c1", "to": "b"})
	require.NoError(t, err)
	assert.Len(t, tool.calls, 1)
}

func TestBadSchemaSkipsValidation(t *testing.T) {
	r := newRouter()
	tool := &fakeTool{name: "odd", schema: `{"type": 12}`}
	require.NoError(t, r.Register("c1", tool))

	_, err := r.Dispatch(context.Background(), "odd", map[string]any{"connection_id": "c1", "any": true})
	require.NoError(t, err)
}

func TestUnregisterAll(t *testing.T) {
	r := newRouter()
	var changes []string
	r.OnChange(func(name string) { changes = append(changes, name) })

	require.NoError(t, r.Register("c1", &fakeTool{name: "a"}))
	require.NoError(t, r.Register("c1", &fakeTool{name: "b"}))
	require.NoError(t, r.Register("c2", &fakeTool{name: "a"}))

	r.UnregisterAll("c1")
	assert.Empty(t, r.ConnectionTools("c1"))

	info, ok := r.Describe("a")
	require.True(t, ok)
	assert.Equal(t, 1, info.Connections)
	_, ok = r.Describe("b")
	assert.False(t, ok, "tool with no connections left is pruned")

	_, err := r.Dispatch(context.Background(), "b", map[string]any{"connection_id": "c1"})
	assert.ErrorIs(t, err, ErrToolNotFound)

	assert.ElementsMatch(t, []string{"a", "b", "a", "a", "b"}, changes)

	// Unknown connection is a no-op.
	r.UnregisterAll("c9")
}

func TestUnregisterToolsChecksIdentity(t *testing.T) {
	r := newRouter()
	old := &fakeTool{name: "a"}
	fresh := &fakeTool{name: "a"}
	require.NoError(t, r.Register("c1", old))
	require.NoError(t, r.Register("c1", fresh))

	r.UnregisterTools("c1", []Tool{old})
	tools := r.ConnectionTools("c1")
	require.Len(t, tools, 1)

	r.UnregisterTools("c1", []Tool{fresh})
	assert.Empty(t, r.ConnectionTools("c1"))
	_, ok := r.Describe("a")
	assert.False(t, ok)
}

func TestDynamicShadowsStaticFallbackAfterRemoval(t *testing.T) {
	r := newRouter()
	require.NoError(t, r.Register("c1", &fakeTool{name: "lint"}))
	r.UnregisterAll("c1")

	_, err := r.Dispatch(context.Background(), "lint", map[string]any{"connection_id": "c1"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestList(t *testing.T) {
	r := newRouter()
	require.NoError(t, r.Register("c2", &fakeTool{name: "fmt", schema: `{"type":"object","properties":{"a":{"type":"string"}},"required":["a"]}`}))
	require.NoError(t, r.Register("c1", &fakeTool{name: "fmt"}))

	list := r.List()
	var names []string
	for _, ti := range list {
		names = append(names, ti.Name)
	}
	assert.Equal(t, []string{"exec_lua", "fmt", "list_buffers"}, names)

	fmtInfo := list[1]
	assert.Equal(t, KindDynamic, fmtInfo.Kind)
	assert.Equal(t, 2, fmtInfo.Connections)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(fmtInfo.InputSchema, &schema))
	assert.Contains(t, schema["required"], ConnectionIDArg)
	assert.Equal(t, KindStatic, list[0].Kind)
	assert.Len(t, r.Static(), 2)
}

func TestConcurrentRegisterDispatch(t *testing.T) {
	r := newRouter()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		name := fmt.Sprintf("t%d", i%3)
		go func() {
			defer wg.Done()
			_ = r.Register("c1", &fakeTool{name: name})
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Dispatch(ctx, name, map[string]any{"connection_id": "c1"})
		}()
	}
	wg.Wait()
	r.UnregisterAll("c1")
	assert.Empty(t, r.ConnectionTools("c1"))
	assert.Len(t, r.List(), 2)
}

func TestWithConnectionID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		req  []any
	}{
		{"empty", "", []any{"connection_id"}},
		{"no required", `{"type":"object","properties":{"a":{"type":"string"}}}`, []any{"connection_id"}},
		{"keeps required", `{"type":"object","required":["a"]}`, []any{"connection_id", "a"}},
		{"not an object", `[1,2]`, []any{"connection_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			require.NoError(t, json.Unmarshal(WithConnectionID(json.RawMessage(tt.in)), &got))
			assert.Equal(t, "object", got["type"])
			assert.Equal(t, tt.req, got["required"])
			props := got["properties"].(map[string]any)
			assert.Contains(t, props, ConnectionIDArg)
		})
	}
}
