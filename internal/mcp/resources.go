// resources.go implements MCP resource reads.
//
// Resources give read-only views of gateway state that an LLM client can
// load as context without calling a tool: the live connections, the tool
// catalogue, and the diagnostics cached for each connection.
//
// Design: URIs are parsed here rather than relying on template matching in
// mcp-go, so ReadResource behaves the same whether it is reached through the
// MCP server or called directly.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jpl-au/nvimcp/internal/log"
	"github.com/jpl-au/nvimcp/internal/router"
	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrResourceNotFound is returned for a URI no resource matches.
var ErrResourceNotFound = errors.New("resource not found")

// ToolOverview is the tool-overview:// resource: the static tools every
// connection shares and the dynamic tools of each connection.
type ToolOverview struct {
	StaticTools     []router.ToolInfo            `json:"static_tools"`
	ConnectionTools map[string][]router.ToolInfo `json:"connection_specific_tools"`
}

// Resource URIs.
const (
	URIConnections   = "conn-list://"
	URIToolOverview  = "tool-overview://"
	toolsScheme      = "tools://"
	diagnosticScheme = "diagnostics://"
)

// ReadResource returns the JSON contents of uri.
func (g *Gateway) ReadResource(ctx context.Context, uri string) (contents []mcp.ResourceContents, err error) {
	_, span := telemetry.StartSpan(ctx, "gateway.read_resource", telemetry.AttrResourceURI.String(uri))
	audit := log.Event("mcp:resource", "read").Author("mcp").Detail("uri", uri)
	defer func() {
		audit.Write(err)
		telemetry.End(span, err)
	}()

	v, err := g.resource(uri)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (g *Gateway) resource(uri string) (any, error) {
	switch {
	case uri == URIConnections:
		return g.conns.List(), nil
	case uri == URIToolOverview:
		return g.toolOverview(), nil
	case strings.HasPrefix(uri, toolsScheme):
		id := strings.TrimPrefix(uri, toolsScheme)
		if _, err := g.conns.Get(id); err != nil {
			return nil, err
		}
		return g.router.ConnectionTools(id), nil
	case strings.HasPrefix(uri, diagnosticScheme):
		return g.diagnosticsResource(uri)
	}
	return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
}

func (g *Gateway) toolOverview() ToolOverview {
	conns := g.conns.List()
	o := ToolOverview{
		StaticTools:     g.router.StaticInfo(),
		ConnectionTools: make(map[string][]router.ToolInfo, len(conns)),
	}
	for _, c := range conns {
		o.ConnectionTools[c.ID] = g.router.ConnectionTools(c.ID)
	}
	return o
}

// diagnosticsResource serves diagnostics://{id}/workspace and
// diagnostics://{id}/buffer/{buffer_id}.
func (g *Gateway) diagnosticsResource(uri string) (any, error) {
	parts := strings.Split(strings.TrimPrefix(uri, diagnosticScheme), "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	c, err := g.conns.Get(parts[0])
	if err != nil {
		return nil, err
	}

	switch {
	case len(parts) == 2 && parts[1] == "workspace":
		diags, err := c.Client.WorkspaceDiagnostics()
		if err != nil {
			return nil, err
		}
		// JSON object keys must be strings.
		out := make(map[string]any, len(diags))
		for buf, d := range diags {
			out[strconv.FormatInt(buf, 10)] = d
		}
		return out, nil
	case len(parts) == 3 && parts[1] == "buffer":
		buf, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || buf <= 0 {
			return nil, fmt.Errorf("%w: invalid buffer id %q", router.ErrInvalidParams, parts[2])
		}
		return c.Client.BufferDiagnostics(buf)
	}
	return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
}
