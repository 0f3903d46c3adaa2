// Package client talks to the service sockets of other running shells.
package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psh-project/psh/internal/ipc"
	"github.com/psh-project/psh/internal/state"
)

// DefaultTimeout bounds one request to a peer.
const DefaultTimeout = 2 * time.Second

// Client reaches the shells registered under one runtime directory.
type Client struct {
	RuntimeDir string
	Self       int // excluded from List
	Timeout    time.Duration
}

// New returns a Client for runtimeDir that skips the current process.
func New(runtimeDir string) *Client {
	return &Client{
		RuntimeDir: runtimeDir,
		Self:       os.Getpid(),
		Timeout:    DefaultTimeout,
	}
}

// List returns the pids of other live shells.
func (c *Client) List(ctx context.Context) ([]int, error) {
	pids, err := ipc.ListPids(c.RuntimeDir)
	if err != nil {
		return nil, fmt.Errorf("list shells: %w", err)
	}
	out := pids[:0]
	for _, pid := range pids {
		if pid == c.Self || !ipc.Alive(pid) {
			continue
		}
		out = append(out, pid)
	}
	return out, nil
}

// GetEnv fetches the environment of the shell with the given pid.
func (c *Client) GetEnv(ctx context.Context, pid int) (map[string]string, error) {
	var reply structpb.Struct
	if err := c.call(ctx, ipc.SocketPath(c.RuntimeDir, pid), ipc.TagGetEnv, nil, ipc.TagEnv, &reply); err != nil {
		return nil, err
	}
	return ipc.DecodeEnv(&reply), nil
}

// GetStatus fetches the current command and working directory of the shell
// with the given pid.
func (c *Client) GetStatus(ctx context.Context, pid int) (state.Status, error) {
	var reply structpb.Struct
	if err := c.call(ctx, ipc.SocketPath(c.RuntimeDir, pid), ipc.TagGetStatus, nil, ipc.TagStatus, &reply); err != nil {
		return state.Status{}, err
	}
	return ipc.DecodeStatus(&reply), nil
}

// SetEnv sets variables in the shell with the given pid.
func (c *Client) SetEnv(ctx context.Context, pid int, vars map[string]string) error {
	return c.SetEnvAt(ctx, ipc.SocketPath(c.RuntimeDir, pid), vars)
}

// SetEnvAt sets variables in the shell serving sockPath.
func (c *Client) SetEnvAt(ctx context.Context, sockPath string, vars map[string]string) error {
	return c.call(ctx, sockPath, ipc.TagSetEnv, ipc.EncodeEnv(vars), ipc.TagOK, nil)
}

// call performs one request/response exchange on a fresh connection.
func (c *Client) call(ctx context.Context, sockPath string, tag byte, req proto.Message, want byte, reply proto.Message) error {
	conn, err := c.dial(ctx, sockPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if req == nil {
		err = ipc.WriteFrame(conn, tag, nil)
	} else {
		err = ipc.WriteMessage(conn, tag, req)
	}
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return ipc.ReadReply(conn, want, reply)
}

func (c *Client) dial(ctx context.Context, sockPath string) (net.Conn, error) {
	if _, err := os.Stat(sockPath); err != nil {
		return nil, fmt.Errorf("no service socket at %s: %w", sockPath, err)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	conn.SetDeadline(time.Now().Add(timeout))
	return conn, nil
}
