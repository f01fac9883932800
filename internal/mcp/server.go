// Package mcp implements the Model Context Protocol side of nvimcp: the
// Gateway that owns editor connections and routes tool calls, and the
// mcp-go server that exposes it over stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/jpl-au/nvimcp/internal/version"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServeOptions selects the MCP transport.
type ServeOptions struct {
	// HTTPAddr serves streamable HTTP on host:port when set; otherwise the
	// server speaks over stdio.
	HTTPAddr string

	// Stdin and Stdout default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// NewServer builds the mcp-go server for g. Dynamic tools are added to and
// removed from it as connections come and go, and clients are told the
// tool list changed.
func NewServer(g *Gateway) *server.MCPServer {
	s := server.NewMCPServer(
		"nvimcp",
		version.Short(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	for _, st := range g.router.Static() {
		s.AddTool(st.Tool, g.toolHandler(st.Tool.Name))
	}
	g.router.OnChange(func(name string) { g.syncTool(s, name) })
	for _, ti := range g.router.List() {
		if ti.Kind == router.KindDynamic {
			g.syncTool(s, ti.Name)
		}
	}

	registerResources(s, g)
	return s
}

// syncTool mirrors the router's view of a dynamic tool onto s.
func (g *Gateway) syncTool(s *server.MCPServer, name string) {
	info, ok := g.router.Describe(name)
	if !ok {
		s.DeleteTools(name)
		return
	}
	if info.Kind != router.KindDynamic {
		return
	}
	s.AddTool(mcp.NewToolWithRawSchema(name, info.Description, info.InputSchema), g.toolHandler(name))
}

// toolHandler adapts Gateway.CallTool to mcp-go. Routing errors become
// error results so the LLM sees why the call failed.
func (g *Gateway) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := g.CallTool(ctx, name, arguments(req))
		if err != nil {
			return errorResult(err)
		}
		return res, nil
	}
}

// registerResources adds the fixed resources and the per-connection
// resource templates.
func registerResources(s *server.MCPServer, g *Gateway) {
	read := func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return g.ReadResource(ctx, req.Params.URI)
	}

	s.AddResource(
		mcp.NewResource(URIConnections, "Connections",
			mcp.WithResourceDescription("Live Neovim connections"),
			mcp.WithMIMEType("application/json"),
		),
		read,
	)
	s.AddResource(
		mcp.NewResource(URIToolOverview, "Tool overview",
			mcp.WithResourceDescription("Static tools and the connection-scoped tools currently registered"),
			mcp.WithMIMEType("application/json"),
		),
		read,
	)
	s.AddResourceTemplate(
		mcp.NewResourceTemplate("tools://{connection_id}", "Connection tools",
			mcp.WithTemplateDescription("Tools registered by one connection"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		read,
	)
	s.AddResourceTemplate(
		mcp.NewResourceTemplate("diagnostics://{connection_id}/workspace", "Workspace diagnostics",
			mcp.WithTemplateDescription("Diagnostics of every buffer, keyed by buffer id"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		read,
	)
	s.AddResourceTemplate(
		mcp.NewResourceTemplate("diagnostics://{connection_id}/buffer/{buffer_id}", "Buffer diagnostics",
			mcp.WithTemplateDescription("Diagnostics of one buffer"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		read,
	)
}

// Serve runs the MCP server until ctx is cancelled or the client goes away.
//
// Over stdio, stdout carries only MCP JSON-RPC messages; all logging must go
// to stderr or a file.
func Serve(ctx context.Context, g *Gateway, opts ServeOptions) error {
	s := NewServer(g)
	if opts.HTTPAddr != "" {
		return serveHTTP(ctx, s, g.log, opts.HTTPAddr)
	}

	in, out := opts.Stdin, opts.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(g.log.Handler(), slog.LevelError))

	g.log.Info("nvimcp MCP server ready", "version", version.Short(), "transport", "stdio")
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		g.log.Info("server stopped")
		return nil
	}
	return err
}

// NewHTTPHandler routes /mcp to the streamable HTTP transport and serves
// /metrics and /healthz beside it.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/mcp", server.NewStreamableHTTPServer(s))
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	return r
}

func serveHTTP(ctx context.Context, s *server.MCPServer, logger *slog.Logger, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(s),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("nvimcp MCP server ready", "version", version.Short(), "transport", "http", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
