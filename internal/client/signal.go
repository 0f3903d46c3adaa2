package client

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/psh-project/psh/internal/state"
)

// ForwardSignals catches SIGINT for as long as ctx is live and relays it to
// the shell's foreground process.
func ForwardSignals(ctx context.Context, st *state.State, logger *slog.Logger) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	defer signal.Stop(ch)
	return Forward(ctx, st, ch, logger)
}

// Forward sends every signal received on sigs to the running pid recorded
// in st. With no running pid the signal is dropped. It returns when ctx is
// done or sigs is closed.
func Forward(ctx context.Context, st *state.State, sigs <-chan os.Signal, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigs:
			if !ok {
				return nil
			}
			pid, running := st.RunningPid()
			if !running {
				continue
			}
			num := unix.SIGINT
			if s, ok := sig.(syscall.Signal); ok {
				num = s
			}
			if err := unix.Kill(pid, num); err != nil {
				logger.Warn("forward signal", "pid", pid, "signal", num.String(), "err", err)
				continue
			}
			logger.Debug("forwarded signal", "pid", pid, "signal", num.String())
		}
	}
}
