// Package transport opens byte streams to Neovim instances.
//
// Every supported endpoint (TCP address, Unix domain socket, Windows named
// pipe) is reduced to a plain io.ReadWriteCloser so the RPC layer above never
// sees which kind of connection it is running on.
//
// Platform-specific path dialing lives in path_unix.go and path_windows.go.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ErrTransport is matched by every error returned from this package.
var ErrTransport = errors.New("transport error")

// ErrUnsupportedKind is returned when a kind is unknown or cannot be used
// on the current platform.
var ErrUnsupportedKind = errors.New("unsupported connection kind")

// Stream is a duplex byte stream. Close releases the underlying connection.
type Stream = io.ReadWriteCloser

// Kind selects how a target is dialed.
type Kind string

const (
	// KindAuto infers the kind from the target string.
	KindAuto Kind = "auto"
	// KindTCP dials a host:port address.
	KindTCP Kind = "tcp"
	// KindUnix dials a Unix domain socket path.
	KindUnix Kind = "unix"
	// KindNamedPipe dials a Windows named pipe.
	KindNamedPipe Kind = "namedpipe"
)

// DefaultTimeout bounds a dial when the caller passes zero.
const DefaultTimeout = 5 * time.Second

// ParseKind converts a user-supplied kind name. An empty string is KindAuto.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindTCP, KindUnix, KindNamedPipe:
		return k, nil
	case "pipe":
		return KindNamedPipe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// Error describes a failed connect or I/O setup. The original cause is kept
// for errors.Is and errors.As.
type Error struct {
	Op     string
	Kind   Kind
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrTransport so callers can classify without a type switch.
func (e *Error) Is(target error) bool { return target == ErrTransport }

// Detect infers the kind for target and strips any scheme prefix.
//
//	tcp://127.0.0.1:6666  -> tcp, 127.0.0.1:6666
//	unix:///tmp/nvim.sock -> unix, /tmp/nvim.sock
//	\\.\pipe\nvim.1234.0  -> namedpipe
//	/run/user/1000/nvim.0 -> unix
//	localhost:6666        -> tcp
func Detect(target string) (Kind, string) {
	switch {
	case strings.HasPrefix(target, "tcp://"):
		return KindTCP, strings.TrimPrefix(target, "tcp://")
	case strings.HasPrefix(target, "unix://"):
		return KindUnix, strings.TrimPrefix(target, "unix://")
	case strings.HasPrefix(target, `\\.\pipe\`), strings.HasPrefix(target, "//./pipe/"):
		return KindNamedPipe, target
	}
	if strings.ContainsAny(target, `/\`) {
		return KindUnix, target
	}
	if _, port, err := net.SplitHostPort(target); err == nil && port != "" {
		return KindTCP, target
	}
	return KindUnix, target
}

// Normalise resolves KindAuto and strips scheme prefixes so the same
// endpoint always yields the same (kind, target) pair.
func Normalise(kind Kind, target string) (Kind, string) {
	detected, stripped := Detect(target)
	if kind == "" || kind == KindAuto {
		return detected, stripped
	}
	if kind == detected {
		return kind, stripped
	}
	return kind, target
}

// Dial opens a stream to target. A zero timeout uses DefaultTimeout.
// No retries are attempted.
func Dial(ctx context.Context, kind Kind, target string, timeout time.Duration) (Stream, error) {
	kind, target = Normalise(kind, target)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch kind {
	case KindTCP:
		return DialTCP(ctx, target)
	case KindUnix, KindNamedPipe:
		if kind != PathKind {
			return nil, &Error{Op: "dial", Kind: kind, Target: target, Err: ErrUnsupportedKind}
		}
		return DialPath(ctx, target)
	default:
		return nil, &Error{Op: "dial", Kind: kind, Target: target, Err: ErrUnsupportedKind}
	}
}

// DialTCP connects to a host:port address.
func DialTCP(ctx context.Context, address string) (Stream, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &Error{Op: "dial", Kind: KindTCP, Target: address, Err: err}
	}
	return c, nil
}
