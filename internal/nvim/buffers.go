package nvim

import "context"

// BufferInfo describes one editor buffer.
type BufferInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	LineCount int64  `json:"line_count"`
}

// Buffers lists every buffer known to the editor, in handle order.
func (c *Client) Buffers(ctx context.Context) ([]BufferInfo, error) {
	var out []BufferInfo
	if err := c.execLuaInto(ctx, &out, scriptListBuffers); err != nil {
		return nil, err
	}
	if out == nil {
		out = []BufferInfo{}
	}
	return out, nil
}
