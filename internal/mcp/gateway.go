// gateway.go implements the Gateway, the façade MCP requests go through.
//
// Separated from server.go so the gateway can be driven directly in tests
// without an MCP transport. server.go adapts mcp-go requests onto these
// methods.
//
// Design: Every editor connection owns one nvim.Client. Connect registers
// the connection before discovering its Lua tools, and a watcher goroutine
// per connection removes it when the editor goes away without an explicit
// disconnect. Removal always goes through the registry first so a
// connection is torn down exactly once, whichever path notices first.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpl-au/nvimcp/internal/conn"
	"github.com/jpl-au/nvimcp/internal/log"
	"github.com/jpl-au/nvimcp/internal/luatool"
	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/jpl-au/nvimcp/internal/transport"
	"github.com/jpl-au/nvimcp/internal/validate"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// ErrConnectionLost is recorded when an editor closes its end of a session.
var ErrConnectionLost = errors.New("connection lost")

// Options configures a Gateway.
type Options struct {
	// Client is applied to every editor client the gateway creates.
	Client nvim.Options
	// LuaDiscovery enables discovery of tools registered by the nvim-mcp
	// Lua plugin.
	LuaDiscovery bool
	Logger       *slog.Logger
	// Discover lists candidate editor targets; defaults to transport.Discover.
	Discover func() []string
}

// Gateway exposes editor connections as MCP tools and resources.
type Gateway struct {
	opts   Options
	log    *slog.Logger
	conns  *conn.Registry
	router *router.Router

	watchers sync.WaitGroup
}

// NewGateway returns a gateway with no connections.
func NewGateway(opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Discover == nil {
		opts.Discover = transport.Discover
	}
	g := &Gateway{
		opts:  opts,
		log:   opts.Logger,
		conns: conn.NewRegistry(),
	}
	g.router = router.New(g.conns, g.staticTools()...)
	return g
}

// Router returns the tool router.
func (g *Gateway) Router() *router.Router { return g.router }

// Connections returns the connection registry.
func (g *Gateway) Connections() *conn.Registry { return g.conns }

// Connect opens a session to target and registers it. A target that is
// already connected fails with nvim.ErrAlreadyConnected.
func (g *Gateway) Connect(ctx context.Context, target string, kind transport.Kind) (c *conn.Connection, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.connect", telemetry.AttrTarget.String(target))
	audit := log.Event("mcp:connect", "connect").Author("mcp").Target(target)
	defer func() {
		if c != nil {
			audit.Connection(c.ID)
			span.SetAttributes(telemetry.AttrConnectionID.String(c.ID))
		}
		audit.Write(err)
		telemetry.End(span, err)
	}()

	target, err = validate.Target(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", router.ErrInvalidParams, err)
	}
	kind, target = transport.Normalise(kind, target)

	id, existing := g.conns.ResolveID(target)
	if existing != nil {
		return nil, fmt.Errorf("%w: %s is connection %s", nvim.ErrAlreadyConnected, target, existing.ID)
	}

	opts := g.opts.Client
	opts.Logger = g.log.With("connection_id", id)
	client := nvim.New(opts)
	if err := client.Connect(ctx, kind, target); err != nil {
		return nil, err
	}
	if err := client.SetupDiagnostics(ctx); err != nil {
		// Editors without vim.diagnostic still serve every other tool.
		g.log.Warn("diagnostics unavailable", "connection_id", id, "error", err)
	}

	c = &conn.Connection{
		ID:          id,
		Target:      target,
		Kind:        client.Kind(),
		ConnectedAt: time.Now().UTC(),
		Client:      client,
	}
	if actual, inserted := g.conns.InsertIfAbsent(c); !inserted {
		_ = client.Disconnect()
		if actual.Target == target {
			return nil, fmt.Errorf("%w: %s is connection %s", nvim.ErrAlreadyConnected, target, actual.ID)
		}
		return nil, fmt.Errorf("connection id %s was taken by %s, retry", id, actual.Target)
	}

	g.watch(c)
	g.registerLuaTools(ctx, c)
	g.log.Info("connected", "connection_id", id, "target", target, "kind", c.Kind)
	return c, nil
}

// registerLuaTools discovers and registers c's Lua tools. Tools registered
// after c was concurrently removed are rolled back.
func (g *Gateway) registerLuaTools(ctx context.Context, c *conn.Connection) {
	if !g.opts.LuaDiscovery {
		return
	}
	tools, err := luatool.Discover(ctx, c.Client, g.log.With("connection_id", c.ID))
	if err != nil {
		g.log.Warn("lua tool discovery failed", "connection_id", c.ID, "error", err)
		return
	}

	registered := make([]router.Tool, 0, len(tools))
	for _, t := range tools {
		if err := g.router.Register(c.ID, t); err != nil {
			g.log.Warn("lua tool skipped", "connection_id", c.ID, "tool", t.Name(), "error", err)
			continue
		}
		registered = append(registered, t)
	}

	if cur, err := g.conns.Get(c.ID); err != nil || cur != c {
		g.router.UnregisterTools(c.ID, registered)
	}
}

// watch removes c when its session ends without Disconnect.
func (g *Gateway) watch(c *conn.Connection) {
	done := c.Client.Done()
	g.watchers.Add(1)
	go func() {
		defer g.watchers.Done()
		<-done
		if !g.conns.RemoveIf(c.ID, c) {
			return
		}
		g.router.UnregisterAll(c.ID)
		_ = c.Client.Disconnect()
		g.log.Warn("connection lost", "connection_id", c.ID, "target", c.Target)
		log.Event("gateway:connection_lost", "disconnect").
			Connection(c.ID).
			Target(c.Target).
			Write(ErrConnectionLost)
	}()
}

// Disconnect closes connection id, removes its tools and returns the
// removed connection.
func (g *Gateway) Disconnect(ctx context.Context, id string) (c *conn.Connection, err error) {
	_, span := telemetry.StartSpan(ctx, "gateway.disconnect", telemetry.AttrConnectionID.String(id))
	audit := log.Event("mcp:disconnect", "disconnect").Author("mcp").Connection(id)
	defer func() {
		audit.Write(err)
		telemetry.End(span, err)
	}()

	c, err = g.conns.Remove(id)
	if err != nil {
		return nil, err
	}
	audit.Target(c.Target)
	g.router.UnregisterAll(id)
	if err := c.Client.Disconnect(); err != nil && !errors.Is(err, nvim.ErrNotConnected) {
		g.log.Debug("disconnect", "connection_id", id, "error", err)
	}
	g.log.Info("disconnected", "connection_id", id, "target", c.Target)
	return c, nil
}

// ListTools returns every static tool and every registered dynamic tool.
func (g *Gateway) ListTools() []router.ToolInfo {
	return g.router.List()
}

// CallTool dispatches a tool call. Routing failures are returned as errors;
// failures inside a tool are error results.
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (res *mcp.CallToolResult, err error) {
	connID, _ := args[router.ConnectionIDArg].(string)
	audit := log.Event("mcp:"+name, "call").Author("mcp").Tool(name).Connection(connID)
	defer func() {
		if err == nil && res != nil && res.IsError {
			audit.Write(errors.New(resultText(res)))
			return
		}
		audit.Write(err)
	}()
	if args == nil {
		args = map[string]any{}
	}
	return g.router.Dispatch(ctx, name, args)
}

// Close disconnects every connection concurrently and waits for the
// connection watchers to finish.
func (g *Gateway) Close(ctx context.Context) error {
	var eg errgroup.Group
	for _, c := range g.conns.List() {
		id := c.ID
		eg.Go(func() error {
			_, err := g.Disconnect(ctx, id)
			if errors.Is(err, conn.ErrConnectionNotFound) {
				return nil
			}
			return err
		})
	}
	err := eg.Wait()

	done := make(chan struct{})
	go func() {
		g.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// resultText joins the text content of a result.
func resultText(res *mcp.CallToolResult) string {
	var s string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			if s != "" {
				s += "\n"
			}
			s += tc.Text
		}
	}
	return s
}
