//go:build !windows

package testutil

import (
	"net"
	"path/filepath"
	"testing"
)

// DummyUnixSocket accepts connections on a Unix socket and answers garbage,
// so that a driver connecting to it fails with a protocol error rather than
// "connection refused".
type DummyUnixSocket struct {
	Dir  string // Directory containing the socket
	Path string // Full path to the socket file
}

// StartDummyUnixSocket listens on `socketName` in a temporary directory until the test ends.
func StartDummyUnixSocket(t *testing.T, socketName string) DummyUnixSocket {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, socketName)
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte("dummy socket response\n"))
			conn.Close()
		}
	}()
	return DummyUnixSocket{Dir: dir, Path: path}
}
