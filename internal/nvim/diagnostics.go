// diagnostics.go keeps a per-buffer copy of the editor's diagnostics.
//
// The editor pushes the full diagnostic list of a buffer every time it
// changes (DiagnosticChanged autocmd -> rpcnotify). Each push replaces the
// cached list for that buffer; nothing is merged. Reads never touch the
// network and never wait for a push.

package nvim

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/jpl-au/nvimcp/internal/msgrpc"
)

// DiagnosticsMethod is the notification method the editor sends on change.
const DiagnosticsMethod = "nvimcp_diagnostics_changed"

// Diagnostic is one entry from vim.diagnostic.get. Positions are zero-based.
type Diagnostic struct {
	BufferID  int64  `json:"buffer_id"`
	Lnum      int64  `json:"lnum"`
	Col       int64  `json:"col"`
	EndLnum   int64  `json:"end_lnum"`
	EndCol    int64  `json:"end_col"`
	Severity  int64  `json:"severity"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	Code      any    `json:"code,omitempty"`
	Namespace int64  `json:"namespace,omitempty"`
}

type diagnosticsPayload struct {
	BufferID    int64        `json:"buffer_id"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// SetupDiagnostics arms the DiagnosticChanged autocmd on the editor and
// starts applying its notifications to the cache. The editor also pushes
// the current state of every loaded buffer. Calling it again on the same
// session is a no-op. The round trips run without holding the session lock.
func (c *Client) SetupDiagnostics(ctx context.Context) error {
	c.mu.Lock()
	if c.rpc == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	rpc := c.rpc
	if c.diagRPC == rpc {
		c.mu.Unlock()
		return nil
	}
	c.diagRPC = rpc
	c.mu.Unlock()

	ch, unsub, err := c.armDiagnostics(ctx, rpc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.diagRPC == rpc {
			c.diagRPC = nil
		}
		return err
	}
	if c.rpc != rpc {
		// Disconnected while arming.
		unsub()
		return ErrNotConnected
	}
	c.unsub = unsub
	go c.applyDiagnostics(rpc, ch)
	return nil
}

func (c *Client) armDiagnostics(ctx context.Context, rpc *msgrpc.Client) (<-chan msgrpc.Notification, func(), error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	info, err := rpc.Call(callCtx, "nvim_get_api_info")
	if err != nil {
		return nil, nil, fmt.Errorf("get api info: %w", err)
	}
	chanID, err := channelID(info)
	if err != nil {
		return nil, nil, &APIError{Message: err.Error()}
	}

	// Subscribe before arming so the initial snapshot is not missed.
	ch, unsub := rpc.Subscribe(DiagnosticsMethod, c.opts.NotifyBuffer)
	if _, err := rpc.Call(callCtx, "nvim_exec_lua", scriptSetupDiagnostics, []any{chanID, DiagnosticsMethod}); err != nil {
		unsub()
		var re *msgrpc.RemoteError
		if errors.As(err, &re) {
			return nil, nil, &APIError{Message: re.Message, Err: re}
		}
		return nil, nil, fmt.Errorf("arm diagnostics autocmd: %w", err)
	}
	return ch, unsub, nil
}

func channelID(info any) (int64, error) {
	arr, ok := info.([]any)
	if !ok || len(arr) == 0 {
		return 0, fmt.Errorf("unexpected nvim_get_api_info reply %T", info)
	}
	id, ok := msgrpc.AsInt64(arr[0])
	if !ok {
		return 0, fmt.Errorf("unexpected channel id %T", arr[0])
	}
	return id, nil
}

func (c *Client) applyDiagnostics(rpc *msgrpc.Client, ch <-chan msgrpc.Notification) {
	for n := range ch {
		if len(n.Params) == 0 {
			continue
		}
		v, err := msgrpc.ToJSON(n.Params[0])
		if err != nil {
			c.log.Warn("undecodable diagnostics notification", "error", err)
			continue
		}
		var p diagnosticsPayload
		if err := decode(v, &p); err != nil {
			c.log.Warn("malformed diagnostics notification", "error", err)
			continue
		}
		if !c.storeDiagnostics(rpc, p.BufferID, p.Diagnostics) {
			return
		}
	}
}

// storeDiagnostics caches diags for buf while rpc is still the live
// session. It reports false once the session has ended.
func (c *Client) storeDiagnostics(rpc *msgrpc.Client, buf int64, diags []Diagnostic) bool {
	if diags == nil {
		diags = []Diagnostic{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rpc != rpc {
		return false
	}
	c.dmu.Lock()
	c.diags[buf] = diags
	c.dmu.Unlock()
	return true
}

func (c *Client) resetDiagnostics() {
	c.dmu.Lock()
	c.diags = make(map[int64][]Diagnostic)
	c.dmu.Unlock()
}

// BufferDiagnostics returns the cached diagnostics for a buffer. A buffer
// that has not been reported yet yields an empty slice.
func (c *Client) BufferDiagnostics(buf int64) ([]Diagnostic, error) {
	if _, err := c.session(); err != nil {
		return nil, err
	}
	c.dmu.RLock()
	defer c.dmu.RUnlock()
	d := c.diags[buf]
	out := make([]Diagnostic, len(d))
	copy(out, d)
	return out, nil
}

// WorkspaceDiagnostics returns a copy of the whole cache.
func (c *Client) WorkspaceDiagnostics() (map[int64][]Diagnostic, error) {
	if _, err := c.session(); err != nil {
		return nil, err
	}
	c.dmu.RLock()
	defer c.dmu.RUnlock()
	out := maps.Clone(c.diags)
	if out == nil {
		out = make(map[int64][]Diagnostic)
	}
	return out, nil
}
