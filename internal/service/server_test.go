package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psh-project/psh/internal/ipc"
	"github.com/psh-project/psh/internal/logging"
	"github.com/psh-project/psh/internal/state"
)

const testPid = 4242

func testServer(t *testing.T) (*Server, *state.State, net.Listener, string) {
	t.Helper()
	st := state.New("", []string{"HOME=/home/test", "LANG=C"}, "/srv")

	// Use /tmp directly for the socket to stay within the unix socket path
	// limit (t.TempDir() paths can be too long).
	runtimeDir, err := os.MkdirTemp("", "psh-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(runtimeDir) })

	ln, err := Listen(runtimeDir, testPid)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(st, logging.Discard())
	return srv, st, ln, ipc.SocketPath(runtimeDir, testPid)
}

func startServer(t *testing.T) (*state.State, string, context.CancelFunc, <-chan error) {
	t.Helper()
	srv, st, ln, sockPath := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(cancel)
	return st, sockPath, cancel, done
}

func request(t *testing.T, sockPath string, tag byte, payload []byte) (byte, []byte) {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := ipc.WriteFrame(conn, tag, payload); err != nil {
		t.Fatalf("write request: %v", err)
	}
	gotTag, gotPayload, err := ipc.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return gotTag, gotPayload
}

func TestServerGetEnv(t *testing.T) {
	_, sockPath, _, _ := startServer(t)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := ipc.WriteFrame(conn, ipc.TagGetEnv, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply structpb.Struct
	if err := ipc.ReadReply(conn, ipc.TagEnv, &reply); err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	env := ipc.DecodeEnv(&reply)
	if env["HOME"] != "/home/test" || env["LANG"] != "C" || len(env) != 2 {
		t.Errorf("env = %v", env)
	}
}

func TestServerSetEnv(t *testing.T) {
	st, sockPath, _, _ := startServer(t)

	payload, err := proto.Marshal(ipc.EncodeEnv(map[string]string{"EDITOR": "vi", "LANG": "en"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tag, _ := request(t, sockPath, ipc.TagSetEnv, payload)
	if tag != ipc.TagOK {
		t.Fatalf("tag = 0x%02x, want TagOK", tag)
	}
	if v, _ := st.Getenv("EDITOR"); v != "vi" {
		t.Errorf("EDITOR = %q, want vi", v)
	}
	if v, _ := st.Getenv("LANG"); v != "en" {
		t.Errorf("LANG = %q, want en", v)
	}
}

func TestServerGetStatus(t *testing.T) {
	st, sockPath, _, _ := startServer(t)
	st.BeginCommand("make")

	tag, payload := request(t, sockPath, ipc.TagGetStatus, nil)
	if tag != ipc.TagStatus {
		t.Fatalf("tag = 0x%02x, want TagStatus", tag)
	}
	var reply structpb.Struct
	if err := proto.Unmarshal(payload, &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := ipc.DecodeStatus(&reply)
	want := state.Status{CurrentCommand: "make", WorkingDir: "/srv"}
	if got != want {
		t.Errorf("status = %+v, want %+v", got, want)
	}
}

func TestServerUnknownTag(t *testing.T) {
	_, sockPath, _, _ := startServer(t)
	tag, _ := request(t, sockPath, 0x7f, []byte("bogus"))
	if tag != ipc.TagError {
		t.Errorf("tag = 0x%02x, want TagError", tag)
	}
}

func TestServerBadSetEnvPayload(t *testing.T) {
	st, sockPath, _, _ := startServer(t)
	tag, _ := request(t, sockPath, ipc.TagSetEnv, []byte{0xff, 0xff, 0xff})
	if tag != ipc.TagError {
		t.Errorf("tag = 0x%02x, want TagError", tag)
	}
	if _, ok := st.Getenv("EDITOR"); ok {
		t.Error("state changed by a rejected request")
	}
}

func TestServerConcurrentConnections(t *testing.T) {
	st, sockPath, _, _ := startServer(t)

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			conn, err := net.Dial("unix", sockPath)
			if err != nil {
				t.Errorf("dial %d: %v", i, err)
				return
			}
			defer conn.Close()

			key := fmt.Sprintf("VAR_%d", i)
			if err := ipc.WriteMessage(conn, ipc.TagSetEnv, ipc.EncodeEnv(map[string]string{key: "x"})); err != nil {
				t.Errorf("conn %d: write: %v", i, err)
				return
			}
			if err := ipc.ReadReply(conn, ipc.TagOK, nil); err != nil {
				t.Errorf("conn %d: reply: %v", i, err)
			}
		}(i)
	}

	wg.Wait()
	for i := 0; i < n; i++ {
		if _, ok := st.Getenv(fmt.Sprintf("VAR_%d", i)); !ok {
			t.Errorf("VAR_%d not set", i)
		}
	}
}

func TestServerShutdownRemovesSocketDir(t *testing.T) {
	_, sockPath, cancel, done := startServer(t)

	// Make sure the server is accepting before shutting it down.
	request(t, sockPath, ipc.TagGetEnv, nil)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}

	if _, err := os.Stat(filepath.Dir(sockPath)); !os.IsNotExist(err) {
		t.Errorf("socket dir still present: %v", err)
	}
}

func TestListenTwiceFails(t *testing.T) {
	runtimeDir, err := os.MkdirTemp("", "psh-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(runtimeDir) })

	ln, err := Listen(runtimeDir, testPid)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if _, err := Listen(runtimeDir, testPid); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second Listen error = %v, want 'already running'", err)
	}
}

func TestCleanStaleSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	// No socket: should be a no-op.
	if err := cleanStaleSocket(sockPath); err != nil {
		t.Fatalf("no socket: %v", err)
	}

	// Create a stale socket file (just a regular file, nobody listening).
	if err := os.WriteFile(sockPath, nil, 0600); err != nil {
		t.Fatalf("create fake socket: %v", err)
	}

	if err := cleanStaleSocket(sockPath); err != nil {
		t.Fatalf("stale socket: %v", err)
	}

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Error("stale socket should have been removed")
	}
}

func TestPruneStale(t *testing.T) {
	runtimeDir := t.TempDir()
	live := os.Getpid()
	const dead = 999999999
	for _, pid := range []int{live, dead} {
		if err := os.MkdirAll(ipc.PidDir(runtimeDir, pid), 0700); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := PruneStale(runtimeDir)
	if err != nil {
		t.Fatalf("PruneStale: %v", err)
	}
	if len(removed) != 1 || removed[0] != dead {
		t.Errorf("removed = %v, want [%d]", removed, dead)
	}
	if _, err := os.Stat(ipc.PidDir(runtimeDir, live)); err != nil {
		t.Errorf("live dir removed: %v", err)
	}
}
