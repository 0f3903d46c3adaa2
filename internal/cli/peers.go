package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/psh-project/psh/internal/engine"
)

// RunPeers lists the other running shells.
func RunPeers(ctx context.Context, w, errw io.Writer, peers engine.Peers, logger *slog.Logger) int {
	if err := engine.ListPeers(ctx, w, peers, logger); err != nil {
		fmt.Fprintf(errw, "psh peers: %v\n", err)
		return 1
	}
	return 0
}
