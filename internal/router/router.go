// Package router resolves MCP tool calls to static or connection-scoped
// tools.
//
// Static tools are fixed when the router is built and served for every
// connection. Dynamic tools belong to one connection and are registered when
// it connects and removed when it goes away. Dispatch prefers a dynamic tool
// whenever one is registered under the requested name, and falls back to the
// static set otherwise.
//
// Design: The registry is two sharded maps. tools maps a tool name to an
// immutable inner map of connection id to entry; writers replace the inner
// map rather than mutating it, so Dispatch can read it without holding any
// lock. conns is the inverse index used to drop every tool of a connection in
// one call.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"

	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/shardmap"
	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ConnectionIDArg is the argument every dynamic tool call must carry.
const ConnectionIDArg = "connection_id"

// Tool kinds used in listings and metrics.
const (
	KindStatic  = "static"
	KindDynamic = "dynamic"
)

var (
	// ErrNameConflict is returned when a dynamic tool reuses a static name.
	ErrNameConflict = errors.New("tool name conflicts with a static tool")
	// ErrToolNotFound is returned when no tool matches a call.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidParams is returned when call arguments are missing or do not
	// match the tool's input schema.
	ErrInvalidParams = errors.New("invalid params")
)

// Tool is a connection-scoped tool.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is the JSON schema of the arguments, excluding
	// connection_id.
	InputSchema() json.RawMessage
	Call(ctx context.Context, client *nvim.Client, args map[string]any) (*mcp.CallToolResult, error)
}

// StaticTool is a tool served regardless of connection.
type StaticTool struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// ClientLookup finds the editor client of a connection.
type ClientLookup interface {
	Client(connectionID string) (*nvim.Client, error)
}

// ToolInfo describes one listed tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Kind        string          `json:"kind"`
	// Connections is the number of connections offering a dynamic tool.
	Connections int `json:"connections,omitempty"`
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema // nil when the tool's schema did not compile
}

// Router holds the static and dynamic tool sets.
type Router struct {
	clients ClientLookup
	static  map[string]StaticTool
	log     *slog.Logger

	tools *shardmap.Map[map[string]*entry]
	conns *shardmap.Map[map[string]struct{}]

	hmu   sync.RWMutex
	hooks []func(name string)
}

// New builds a router with a fixed static set. Duplicate static names panic.
func New(clients ClientLookup, static ...StaticTool) *Router {
	r := &Router{
		clients: clients,
		static:  make(map[string]StaticTool, len(static)),
		log:     slog.Default(),
		tools:   shardmap.New[map[string]*entry](),
		conns:   shardmap.New[map[string]struct{}](),
	}
	for _, t := range static {
		if _, dup := r.static[t.Tool.Name]; dup {
			panic("router: duplicate static tool " + t.Tool.Name)
		}
		r.static[t.Tool.Name] = t
	}
	return r
}

// OnChange adds a hook called after a dynamic tool name gains or loses a
// connection. Hooks run on the mutating goroutine.
func (r *Router) OnChange(fn func(name string)) {
	r.hmu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hmu.Unlock()
}

func (r *Router) changed(name string) {
	r.hmu.RLock()
	hooks := r.hooks
	r.hmu.RUnlock()
	for _, fn := range hooks {
		fn(name)
	}
}

// Register adds t for connection connID, replacing any tool of the same name
// that connection already had.
func (r *Router) Register(connID string, t Tool) error {
	name := t.Name()
	if _, ok := r.static[name]; ok {
		return fmt.Errorf("%w: %s", ErrNameConflict, name)
	}

	e := &entry{tool: t}
	if schema, err := compileSchema(name, t.InputSchema()); err != nil {
		r.log.Warn("tool schema rejected, arguments will not be validated",
			"tool", name, "connection_id", connID, "error", err)
	} else {
		e.schema = schema
	}

	added := false
	r.tools.Compute(name, func(old map[string]*entry, _ bool) (map[string]*entry, bool) {
		next := make(map[string]*entry, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		_, replaced := next[connID]
		added = !replaced
		next[connID] = e
		return next, true
	})
	r.conns.Compute(connID, func(old map[string]struct{}, _ bool) (map[string]struct{}, bool) {
		next := make(map[string]struct{}, len(old)+1)
		for k := range old {
			next[k] = struct{}{}
		}
		next[name] = struct{}{}
		return next, true
	})

	if added {
		telemetry.DynamicTools.Inc()
	}
	r.changed(name)
	return nil
}

// UnregisterAll removes every tool of connection connID.
func (r *Router) UnregisterAll(connID string) {
	names, ok := r.conns.LoadAndDelete(connID)
	if !ok {
		return
	}
	for name := range names {
		if r.drop(name, connID, nil) {
			r.changed(name)
		}
	}
}

// UnregisterTools removes tools of connID, but only where the registered
// tool is still the given instance.
func (r *Router) UnregisterTools(connID string, tools []Tool) {
	for _, t := range tools {
		name := t.Name()
		if !r.drop(name, connID, t) {
			continue
		}
		r.conns.Compute(connID, func(old map[string]struct{}, loaded bool) (map[string]struct{}, bool) {
			if !loaded {
				return nil, false
			}
			next := make(map[string]struct{}, len(old))
			for k := range old {
				if k != name {
					next[k] = struct{}{}
				}
			}
			return next, len(next) > 0
		})
		r.changed(name)
	}
}

// drop removes connID from tool name. When only is non-nil the entry is
// removed only if it holds that tool. It reports whether anything changed.
func (r *Router) drop(name, connID string, only Tool) bool {
	removed := false
	r.tools.Compute(name, func(old map[string]*entry, loaded bool) (map[string]*entry, bool) {
		if !loaded {
			return nil, false
		}
		e, ok := old[connID]
		if !ok || (only != nil && e.tool != only) {
			return old, true
		}
		next := make(map[string]*entry, len(old))
		for k, v := range old {
			if k != connID {
				next[k] = v
			}
		}
		removed = true
		return next, len(next) > 0
	})
	if removed {
		telemetry.DynamicTools.Dec()
	}
	return removed
}

// Dispatch runs tool name. A dynamic tool registered under name takes
// precedence over the static set; its call must name a connection that
// offers it.
func (r *Router) Dispatch(ctx context.Context, name string, args map[string]any) (res *mcp.CallToolResult, err error) {
	kind := KindStatic
	ctx, span := telemetry.StartSpan(ctx, "tool.call", telemetry.AttrToolName.String(name))
	defer func() {
		outcome := telemetry.Outcome(err)
		if err == nil && res != nil && res.IsError {
			outcome = telemetry.OutcomeError
		}
		telemetry.ToolCalls.WithLabelValues(name, kind, outcome).Inc()
		span.SetAttributes(telemetry.AttrToolKind.String(kind))
		telemetry.End(span, err)
	}()

	if inner, ok := r.tools.Load(name); ok {
		kind = KindDynamic
		return r.dispatchDynamic(ctx, name, inner, args)
	}
	if st, ok := r.static[name]; ok {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		return st.Handler(ctx, req)
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

func (r *Router) dispatchDynamic(ctx context.Context, name string, inner map[string]*entry, args map[string]any) (*mcp.CallToolResult, error) {
	connID, ok := args[ConnectionIDArg].(string)
	if !ok || connID == "" {
		return nil, fmt.Errorf("%w: %s is required for tool %s", ErrInvalidParams, ConnectionIDArg, name)
	}
	client, err := r.clients.Client(connID)
	if err != nil {
		return nil, err
	}
	e, ok := inner[connID]
	if !ok {
		return nil, fmt.Errorf("%w: %s on connection %s", ErrToolNotFound, name, connID)
	}

	rest := make(map[string]any, len(args))
	for k, v := range args {
		if k != ConnectionIDArg {
			rest[k] = v
		}
	}
	if e.schema != nil {
		if err := e.schema.Validate(rest); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	return e.tool.Call(ctx, client, rest)
}

// List returns the static tools and one entry per dynamic tool name, sorted
// by name.
func (r *Router) List() []ToolInfo {
	out := make([]ToolInfo, 0, len(r.static)+r.tools.Len())
	for _, st := range r.static {
		out = append(out, staticInfo(st))
	}
	r.tools.Range(func(name string, inner map[string]*entry) bool {
		out = append(out, dynamicInfo(inner, len(inner)))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Describe returns the listing entry for name.
func (r *Router) Describe(name string) (ToolInfo, bool) {
	if inner, ok := r.tools.Load(name); ok {
		return dynamicInfo(inner, len(inner)), true
	}
	if st, ok := r.static[name]; ok {
		return staticInfo(st), true
	}
	return ToolInfo{}, false
}

// ConnectionTools returns the dynamic tools of connID sorted by name.
func (r *Router) ConnectionTools(connID string) []ToolInfo {
	names, _ := r.conns.Load(connID)
	out := make([]ToolInfo, 0, len(names))
	for name := range names {
		inner, ok := r.tools.Load(name)
		if !ok {
			continue
		}
		e, ok := inner[connID]
		if !ok {
			continue
		}
		out = append(out, ToolInfo{
			Name:        name,
			Description: e.tool.Description(),
			InputSchema: e.tool.InputSchema(),
			Kind:        KindDynamic,
			Connections: 1,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StaticInfo returns the listing entries of the static tools sorted by name.
func (r *Router) StaticInfo() []ToolInfo {
	out := make([]ToolInfo, 0, len(r.static))
	for _, st := range r.static {
		out = append(out, staticInfo(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Static returns the static tools sorted by name.
func (r *Router) Static() []StaticTool {
	out := make([]StaticTool, 0, len(r.static))
	for _, st := range r.static {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool.Name < out[j].Tool.Name })
	return out
}

func staticInfo(st StaticTool) ToolInfo {
	schema := st.Tool.RawInputSchema
	if len(schema) == 0 {
		schema, _ = json.Marshal(st.Tool.InputSchema)
	}
	return ToolInfo{
		Name:        st.Tool.Name,
		Description: st.Tool.Description,
		InputSchema: schema,
		Kind:        KindStatic,
	}
}

// dynamicInfo describes a dynamic tool by the entry of its lowest connection
// id, so the listing is stable.
func dynamicInfo(inner map[string]*entry, n int) ToolInfo {
	var first string
	for id := range inner {
		if first == "" || id < first {
			first = id
		}
	}
	e := inner[first]
	return ToolInfo{
		Name:        e.tool.Name(),
		Description: e.tool.Description(),
		InputSchema: WithConnectionID(e.tool.InputSchema()),
		Kind:        KindDynamic,
		Connections: n,
	}
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	loc := "mem://tools/" + url.PathEscape(name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(loc)
}
