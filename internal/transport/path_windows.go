//go:build windows

// path_windows.go dials Windows named pipes and lists Neovim's default
// server pipes.
//
// Neovim names its pipes \\.\pipe\nvim.<pid>.<n>. The pipe namespace can be
// listed like a directory, which is what Discover relies on.

package transport

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/Microsoft/go-winio"
)

// PathKind is the kind DialPath connects with on this platform.
const PathKind = KindNamedPipe

const pipePrefix = `\\.\pipe\`

// DialPath connects to a named pipe.
func DialPath(ctx context.Context, path string) (Stream, error) {
	c, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		return nil, &Error{Op: "dial", Kind: KindNamedPipe, Target: path, Err: err}
	}
	return c, nil
}

// Discover returns the names of Neovim server pipes, sorted.
func Discover() []string {
	entries, err := os.ReadDir(pipePrefix)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "nvim") {
			out = append(out, pipePrefix+e.Name())
		}
	}
	sort.Strings(out)
	return out
}
