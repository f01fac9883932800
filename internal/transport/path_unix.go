//go:build !windows

// path_unix.go dials Unix domain sockets and finds Neovim's default
// server sockets on Linux, macOS and the BSDs.
//
// Neovim places listen sockets under $XDG_RUNTIME_DIR when set and under a
// per-user directory in $TMPDIR otherwise. Discovery only globs; it never
// connects.

package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sort"
)

// PathKind is the kind DialPath connects with on this platform.
const PathKind = KindUnix

// DialPath connects to a Unix domain socket.
func DialPath(ctx context.Context, path string) (Stream, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, &Error{Op: "dial", Kind: KindUnix, Target: path, Err: err}
	}
	return c, nil
}

// Discover returns socket paths of running Neovim servers, sorted and
// de-duplicated.
func Discover() []string {
	var patterns []string
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		patterns = append(patterns, filepath.Join(rt, "nvim.*"))
	}
	tmp := os.TempDir()
	patterns = append(patterns,
		filepath.Join(tmp, "nvim.*", "*", "nvim.*"),
		filepath.Join(tmp, "nvim*", "0"),
	)
	return globSockets(patterns)
}

func globSockets(patterns []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			continue
		}
		for _, m := range matches {
			fi, err := os.Stat(m)
			if err != nil || fi.Mode()&os.ModeSocket == 0 || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
