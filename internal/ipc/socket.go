package ipc

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/sys/unix"
)

// SockEnv names the variable through which a shell tells its children where
// its service socket is.
const SockEnv = "PSH_SERVICE_SOCK"

// RuntimeDir returns the directory holding one subdirectory per running
// shell. Prefers $XDG_RUNTIME_DIR/psh/, falls back to <tmp>/psh/.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "psh")
	}
	return filepath.Join(os.TempDir(), "psh")
}

// PidDir returns the directory owned by the shell with the given pid.
func PidDir(runtimeDir string, pid int) string {
	return filepath.Join(runtimeDir, strconv.Itoa(pid))
}

// SocketPath returns the service socket of the shell with the given pid.
func SocketPath(runtimeDir string, pid int) string {
	return filepath.Join(PidDir(runtimeDir, pid), "service.sock")
}

// ListPids returns the pids that have a directory under runtimeDir, in
// ascending order. A missing runtime directory yields no pids.
func ListPids(runtimeDir string) ([]int, error) {
	entries, err := os.ReadDir(runtimeDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
