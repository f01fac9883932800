// Package nvimtest runs a fake Neovim msgpack-rpc server for tests.
//
// The server listens on 127.0.0.1 and answers requests from registered
// handlers. nvim_exec_lua calls are routed by a substring of the Lua code so
// tests can stub individual embedded scripts without depending on their
// exact text.
package nvimtest

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpl-au/nvimcp/internal/msgrpc"
)

// Handler answers one request. A non-nil error is sent back as a Neovim
// error reply.
type Handler func(params []any) (any, error)

type luaHandler struct {
	match string
	fn    func(args []any) (any, error)
}

// Server is a fake Neovim instance.
type Server struct {
	// Channel is the channel id reported by nvim_get_api_info.
	Channel int64

	ln net.Listener

	mu       sync.Mutex
	handlers map[string]Handler
	lua      []luaHandler
	conns    map[*conn]struct{}
	calls    map[string]int
	luaCalls []string
	connCh   chan struct{}
}

type conn struct {
	c   net.Conn
	wmu sync.Mutex
}

func (c *conn) write(frame []byte, err error) {
	if err != nil {
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, _ = c.c.Write(frame)
}

// New starts a server and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("nvimtest: listen: %v", err)
	}
	s := &Server{
		Channel:  1,
		ln:       ln,
		handlers: make(map[string]Handler),
		conns:    make(map[*conn]struct{}),
		calls:    make(map[string]int),
		connCh:   make(chan struct{}, 16),
	}
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Target returns the address in tcp:// form.
func (s *Server) Target() string { return "tcp://" + s.Addr() }

// Handle sets the handler for an RPC method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// HandleLua answers nvim_exec_lua calls whose code contains match. Later
// registrations take precedence. fn receives the Lua argument list.
func (s *Server) HandleLua(match string, fn func(args []any) (any, error)) {
	s.mu.Lock()
	s.lua = append([]luaHandler{{match: match, fn: fn}}, s.lua...)
	s.mu.Unlock()
}

// Buffers stubs the buffer listing script with fixed entries.
func (s *Server) Buffers(bufs ...map[string]any) {
	list := make([]any, len(bufs))
	for i, b := range bufs {
		list[i] = b
	}
	s.HandleLua("line_count", func([]any) (any, error) { return list, nil })
}

// Calls returns how many requests for method have been received.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LuaCalls returns the code of every nvim_exec_lua request received.
func (s *Server) LuaCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.luaCalls...)
}

// WaitConnected blocks until a client has connected or the timeout passes.
func (s *Server) WaitConnected(timeout time.Duration) bool {
	select {
	case <-s.connCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Notify sends a notification to every connected client.
func (s *Server) Notify(method string, params ...any) {
	frame, err := msgrpc.EncodeNotification(method, params)
	for _, c := range s.snapshot() {
		c.write(frame, err)
	}
}

// DropConnections closes every client connection, as if the editor quit.
func (s *Server) DropConnections() {
	for _, c := range s.snapshot() {
		c.c.Close()
	}
}

// Close stops the listener and drops all connections.
func (s *Server) Close() {
	s.ln.Close()
	s.DropConnections()
}

func (s *Server) snapshot() []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) accept() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &conn{c: nc}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		select {
		case s.connCh <- struct{}{}:
		default:
		}
		go s.serve(c)
	}
}

func (s *Server) serve(c *conn) {
	defer func() {
		c.c.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
	dec := msgrpc.NewDecoder(c.c)
	for {
		f, err := msgrpc.ReadFrame(dec)
		if err != nil {
			return
		}
		if f.Type != msgrpc.TypeRequest {
			continue
		}
		result, err := s.dispatch(f.Method, f.Params)
		var errVal any
		if err != nil {
			errVal = []any{0, err.Error()}
			result = nil
		}
		c.write(msgrpc.EncodeResponse(f.MsgID, errVal, result))
	}
}

func (s *Server) dispatch(method string, params []any) (any, error) {
	// Hand handlers plain JSON-style values where possible.
	if norm, err := msgrpc.ToJSON(params); err == nil {
		params, _ = norm.([]any)
	}

	s.mu.Lock()
	s.calls[method]++
	h := s.handlers[method]
	s.mu.Unlock()

	if h != nil {
		return h(params)
	}
	switch method {
	case "nvim_get_api_info":
		return []any{s.Channel, map[string]any{}}, nil
	case "nvim_exec_lua":
		return s.execLua(params)
	}
	return nil, errors.New("nvimtest: no handler for " + method)
}

func (s *Server) execLua(params []any) (any, error) {
	if len(params) < 1 {
		return nil, errors.New("Wrong number of arguments")
	}
	code, _ := params[0].(string)
	var args []any
	if len(params) > 1 {
		args, _ = params[1].([]any)
	}

	s.mu.Lock()
	s.luaCalls = append(s.luaCalls, code)
	handlers := append([]luaHandler(nil), s.lua...)
	s.mu.Unlock()

	for _, h := range handlers {
		if strings.Contains(code, h.match) {
			return h.fn(args)
		}
	}
	return nil, nil
}
