package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Journal appends entries to a JSON-lines file. Each append holds an
// exclusive lock on the file and chains onto whatever entry is last at that
// moment, so shells sharing the file keep a single valid chain.
type Journal struct {
	mu   sync.Mutex
	path string
	pid  int
}

// Open prepares the journal at path, creating it and its directory.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	f.Close()
	return &Journal{path: path, pid: os.Getpid()}, nil
}

// Record appends one executed line. A nil Journal records nothing.
func (j *Journal) Record(line string, exitCode int, runErr error, elapsed time.Duration, cwd string) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	head, err := lastLink(f)
	if err != nil {
		return err
	}

	entry := Entry{
		Seq:      head.seq + 1,
		Time:     time.Now().UTC(),
		PrevHash: head.hash,
		Line:     line,
		Pid:      j.pid,
		ExitCode: exitCode,
		Duration: float64(elapsed.Microseconds()) / 1000.0,
		Cwd:      cwd,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	entry.Hash = entry.digest()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// lastLink reads backwards from the end of f for the last entry and returns
// the link a new entry attaches to.
func lastLink(f *os.File) (link, error) {
	info, err := f.Stat()
	if err != nil {
		return link{}, fmt.Errorf("stat journal: %w", err)
	}
	size := info.Size()

	for window := int64(4096); ; window *= 2 {
		if window > size {
			window = size
		}
		buf := make([]byte, window)
		if _, err := f.ReadAt(buf, size-window); err != nil && err != io.EOF {
			return link{}, fmt.Errorf("read journal: %w", err)
		}
		buf = bytes.TrimRight(buf, "\n")
		if len(buf) == 0 {
			if window == size {
				return genesis(), nil
			}
			continue
		}
		i := bytes.LastIndexByte(buf, '\n')
		if i < 0 && window < size {
			continue
		}
		var last Entry
		if err := json.Unmarshal(buf[i+1:], &last); err != nil {
			return link{}, fmt.Errorf("journal tail is not an entry: %w", err)
		}
		return after(last), nil
	}
}
