// Package service answers environment and status queries from other shells
// over a per-process unix socket.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psh-project/psh/internal/ipc"
	"github.com/psh-project/psh/internal/state"
)

// DefaultTimeout bounds how long one connection may take.
const DefaultTimeout = 5 * time.Second

// Server exposes a shell's State to its peers.
type Server struct {
	state   *state.State
	logger  *slog.Logger
	timeout time.Duration

	active sync.WaitGroup
}

// New creates a server for st.
func New(st *state.State, logger *slog.Logger) *Server {
	return &Server{
		state:   st,
		logger:  logger.With("component", "service"),
		timeout: DefaultTimeout,
	}
}

// Serve accepts connections on ln until ctx is cancelled. The listener is
// closed on return and in-flight requests are allowed to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	// Close the listener when the context is done.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("serving", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Check if this is a clean shutdown.
			select {
			case <-ctx.Done():
				s.active.Wait()
				s.logger.Info("stopped")
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection answers exactly one request.
func (s *Server) handleConnection(conn net.Conn) {
	conn.SetDeadline(time.Now().Add(s.timeout))

	tag, payload, err := ipc.ReadFrame(conn)
	if err != nil {
		s.logger.Debug("read request", "err", err)
		ipc.WriteError(conn, fmt.Sprintf("read request: %v", err))
		return
	}

	switch tag {
	case ipc.TagGetEnv:
		err = ipc.WriteMessage(conn, ipc.TagEnv, ipc.EncodeEnv(s.state.Env()))
	case ipc.TagSetEnv:
		var req structpb.Struct
		if err := proto.Unmarshal(payload, &req); err != nil {
			ipc.WriteError(conn, fmt.Sprintf("decode request: %v", err))
			return
		}
		vars := ipc.DecodeEnv(&req)
		s.state.SetenvAll(vars)
		s.logger.Info("variables set by peer", "keys", state.SortedKeys(vars))
		err = ipc.WriteFrame(conn, ipc.TagOK, nil)
	case ipc.TagGetStatus:
		err = ipc.WriteMessage(conn, ipc.TagStatus, ipc.EncodeStatus(s.state.Status()))
	default:
		err = ipc.WriteError(conn, fmt.Sprintf("unknown request tag 0x%02x", tag))
	}
	if err != nil {
		s.logger.Warn("write reply", "tag", tag, "err", err)
	}
}
