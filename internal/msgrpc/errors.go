// errors.go defines the failure classes a caller of the RPC client can see.
//
// Separated from client.go so the classification rules (what counts as a
// closed connection versus a protocol violation) are in one place. Callers
// match with errors.Is against the sentinels; the typed errors carry detail.

package msgrpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

var (
	// ErrConnectionClosed is returned for calls that were pending when the
	// stream ended, and for every call made afterwards.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrProtocol is matched by *ProtocolError.
	ErrProtocol = errors.New("protocol error")
	// ErrUnsupportedValue is returned by ToJSON for values with no JSON form.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// ProtocolError reports a frame that could not be decoded or had the wrong
// shape. The reader stops after the first one.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is reports ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// RemoteError is an error value sent back by the peer in a response frame.
// Neovim sends [type, message]; Type is -1 when the peer sent something else.
type RemoteError struct {
	Type    int64
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return e.Message
}

// remoteError builds a RemoteError from the raw error slot of a response.
func remoteError(v any) *RemoteError {
	switch e := v.(type) {
	case []any:
		re := &RemoteError{Type: -1, Data: v}
		if len(e) >= 2 {
			if t, ok := toInt64(e[0]); ok {
				re.Type = t
			}
			if s, ok := e[1].(string); ok {
				re.Message = s
				return re
			}
		}
		re.Message = fmt.Sprint(v)
		return re
	case string:
		return &RemoteError{Type: -1, Message: e, Data: v}
	default:
		return &RemoteError{Type: -1, Message: fmt.Sprint(v), Data: v}
	}
}

// classify turns a read failure into ErrConnectionClosed (stream ended) or a
// *ProtocolError (bytes arrived but made no sense).
func classify(err error) error {
	var opErr *net.OpError
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrClosed),
		errors.As(err, &opErr):
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return &ProtocolError{Reason: "decode frame", Err: err}
}
