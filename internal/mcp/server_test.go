package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jpl-au/nvimcp/internal/luatool"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listedTools sends tools/list to s and returns the tool names.
func listedTools(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	reply := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(reply)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))
	names := make([]string, len(resp.Result.Tools))
	for i, tool := range resp.Result.Tools {
		names[i] = tool.Name
	}
	return names
}

func TestServerTracksDynamicTools(t *testing.T) {
	g := newGateway(t, false)
	s := NewServer(g)

	names := listedTools(t, s)
	assert.Contains(t, names, "connect")
	assert.Contains(t, names, "list_buffers")
	assert.NotContains(t, names, "save_all")

	require.NoError(t, g.Router().Register("abc1234", luatool.New("save_all", "Write all buffers", nil)))
	assert.Contains(t, listedTools(t, s), "save_all")

	g.Router().UnregisterAll("abc1234")
	assert.NotContains(t, listedTools(t, s), "save_all")
}

func TestHTTPHandler(t *testing.T) {
	g := newGateway(t, false)
	h := NewHTTPHandler(NewServer(g))

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))
}

func TestServeStdioStopsOnEOF(t *testing.T) {
	g := newGateway(t, false)
	pr, pw := io.Pipe()
	require.NoError(t, pw.Close())

	err := Serve(context.Background(), g, ServeOptions{Stdin: pr, Stdout: io.Discard})
	assert.NoError(t, err)
}
