// Package nvim provides a typed client for one Neovim instance.
//
// A Client is either disconnected or connected to exactly one editor over a
// msgpack-rpc session. Every operation other than Connect requires the
// connected state. Lua executed on the editor is embedded in this package
// (see scripts.go) and sent as opaque strings through nvim_exec_lua.
package nvim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpl-au/nvimcp/internal/msgrpc"
	"github.com/jpl-au/nvimcp/internal/transport"
)

var (
	// ErrNotConnected is returned by operations on a disconnected client.
	ErrNotConnected = errors.New("not connected to neovim")
	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("already connected to neovim")
	// ErrAPI is matched by *APIError.
	ErrAPI = errors.New("neovim api error")
)

// APIError is an application-level failure reported by the editor, such as
// a Lua error, or a reply that could not be decoded.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return "neovim api error: " + e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports ErrAPI.
func (e *APIError) Is(target error) bool { return target == ErrAPI }

// Default option values.
const (
	DefaultCallTimeout    = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// Options tune a Client. Zero values select the defaults.
type Options struct {
	CallTimeout    time.Duration
	ConnectTimeout time.Duration
	NotifyBuffer   int
	Logger         *slog.Logger
}

// Client talks to one Neovim instance.
type Client struct {
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	rpc    *msgrpc.Client
	target string
	kind   transport.Kind
	unsub  func()

	// diagRPC is the session diagnostics are armed, or being armed, for.
	diagRPC *msgrpc.Client

	dmu   sync.RWMutex
	diags map[int64][]Diagnostic
}

// New returns a disconnected client.
func New(opts Options) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = msgrpc.DefaultNotifyBuffer
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Client{opts: opts, log: l, diags: make(map[int64][]Diagnostic)}
}

// Connect dials target and starts a session. kind may be transport.KindAuto.
func (c *Client) Connect(ctx context.Context, kind transport.Kind, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		return ErrAlreadyConnected
	}

	kind, target = transport.Normalise(kind, target)
	stream, err := transport.Dial(ctx, kind, target, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}

	c.rpc = msgrpc.New(stream, msgrpc.WithLogger(c.log.With("target", target)))
	c.target = target
	c.kind = kind
	c.resetDiagnostics()
	return nil
}

// ConnectTCP connects to a host:port address.
func (c *Client) ConnectTCP(ctx context.Context, address string) error {
	return c.Connect(ctx, transport.KindTCP, address)
}

// ConnectPath connects to a Unix socket or, on Windows, a named pipe.
func (c *Client) ConnectPath(ctx context.Context, path string) error {
	return c.Connect(ctx, transport.PathKind, path)
}

// Disconnect ends the session. Pending calls fail with
// msgrpc.ErrConnectionClosed.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return ErrNotConnected
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.diagRPC = nil
	err := c.rpc.Close()
	c.rpc = nil
	c.resetDiagnostics()
	return err
}

// Connected reports whether Connect succeeded and Disconnect has not been
// called. A session whose peer went away still counts as connected until
// Disconnect; its calls fail with msgrpc.ErrConnectionClosed.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rpc != nil
}

// Target returns the normalised target of the current session.
func (c *Client) Target() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Kind returns the transport kind of the current session.
func (c *Client) Kind() transport.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kind
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done is closed when the current session's stream ends. For a
// disconnected client it is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rpc == nil {
		return closedChan
	}
	return c.rpc.Done()
}

func (c *Client) session() (*msgrpc.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rpc == nil {
		return nil, ErrNotConnected
	}
	return c.rpc, nil
}

// call issues one request bounded by the configured call timeout.
func (c *Client) call(ctx context.Context, method string, args ...any) (any, error) {
	rpc, err := c.session()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return rpc.Call(ctx, method, args...)
}

// ExecLua runs code on the editor with args bound to "..." and returns the
// result converted to JSON-compatible values. Lua errors, empty code and
// replies that cannot be represented as JSON are *APIError.
func (c *Client) ExecLua(ctx context.Context, code string, args ...any) (any, error) {
	if _, err := c.session(); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, &APIError{Message: "lua code is empty"}
	}
	if args == nil {
		args = []any{}
	}

	raw, err := c.call(ctx, "nvim_exec_lua", code, args)
	if err != nil {
		var re *msgrpc.RemoteError
		if errors.As(err, &re) {
			return nil, &APIError{Message: re.Message, Err: re}
		}
		return nil, err
	}

	v, err := msgrpc.ToJSON(raw)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode lua result: %v", err), Err: err}
	}
	return v, nil
}

// execLuaInto runs code and decodes the result into dst.
func (c *Client) execLuaInto(ctx context.Context, dst any, code string, args ...any) error {
	v, err := c.ExecLua(ctx, code, args...)
	if err != nil {
		return err
	}
	if err := decode(v, dst); err != nil {
		return &APIError{Message: fmt.Sprintf("decode lua result: %v", err), Err: err}
	}
	return nil
}

// execLuaRaw runs code and decodes the result into dst without touching
// nested values.
func (c *Client) execLuaRaw(ctx context.Context, dst any, code string, args ...any) error {
	v, err := c.ExecLua(ctx, code, args...)
	if err != nil {
		return err
	}
	if err := decodeRaw(v, dst); err != nil {
		return &APIError{Message: fmt.Sprintf("decode lua result: %v", err), Err: err}
	}
	return nil
}
