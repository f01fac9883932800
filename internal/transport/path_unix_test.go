//go:build !windows

package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortTempDir keeps socket paths under the 104-byte sun_path limit on macOS.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "nvt")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestDialUnixSocket(t *testing.T) {
	sock := filepath.Join(shortTempDir(t), "nvim.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		close(accepted)
	}()

	s, err := Dial(context.Background(), KindAuto, sock, time.Second)
	require.NoError(t, err)
	s.Close()
	<-accepted
}

func TestDialUnixMissing(t *testing.T) {
	_, err := DialPath(context.Background(), filepath.Join(shortTempDir(t), "absent.sock"))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDiscoverRuntimeDir(t *testing.T) {
	dir := shortTempDir(t)
	t.Setenv("XDG_RUNTIME_DIR", dir)

	sock := filepath.Join(dir, "nvim.42.0")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	// Regular files with a matching name are not sockets.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nvim.log"), nil, 0o644))

	assert.Contains(t, Discover(), sock)
	assert.NotContains(t, Discover(), filepath.Join(dir, "nvim.log"))
}
