package service

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/psh-project/psh/internal/ipc"
)

// Listen creates the socket directory for pid under runtimeDir and listens
// on its service socket. Closing the returned listener removes the
// directory.
func Listen(runtimeDir string, pid int) (net.Listener, error) {
	sockPath := ipc.SocketPath(runtimeDir, pid)
	dir := filepath.Dir(sockPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	if err := cleanStaleSocket(sockPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	if err := os.Chmod(sockPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return &socketListener{Listener: ln, dir: dir}, nil
}

type socketListener struct {
	net.Listener
	dir  string
	once sync.Once
}

func (l *socketListener) Close() error {
	err := l.Listener.Close()
	l.once.Do(func() { os.RemoveAll(l.dir) })
	return err
}

// cleanStaleSocket removes a socket file if no process is listening on it.
// Returns an error if a live shell is detected.
func cleanStaleSocket(sockPath string) error {
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		return nil
	}

	// Try connecting; if it succeeds, a shell is already serving here.
	conn, err := net.Dial("unix", sockPath)
	if err == nil {
		conn.Close()
		return fmt.Errorf("shell already running (socket %s is active)", sockPath)
	}

	// Stale socket: remove it.
	return os.Remove(sockPath)
}

// PruneStale removes the socket directories of shells that are no longer
// running. It returns the pids it removed.
func PruneStale(runtimeDir string) ([]int, error) {
	pids, err := ipc.ListPids(runtimeDir)
	if err != nil {
		return nil, err
	}
	var removed []int
	for _, pid := range pids {
		if ipc.Alive(pid) {
			continue
		}
		if err := os.RemoveAll(ipc.PidDir(runtimeDir, pid)); err != nil {
			return removed, err
		}
		removed = append(removed, pid)
	}
	return removed, nil
}
