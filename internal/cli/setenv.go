package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/psh-project/psh/internal/client"
)

// RunSetenv sets KEY to the remaining arguments joined by spaces in the
// shell serving sockPath, normally the parent shell.
func RunSetenv(ctx context.Context, w io.Writer, sockPath string, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(w, "Requires at least two args: A var name and a value")
		return 1
	}
	if sockPath == "" {
		fmt.Fprintln(w, "Couldn't find a service socket. Are you running from within psh?")
		return 1
	}
	if _, err := os.Stat(sockPath); err != nil {
		fmt.Fprintln(w, "Couldn't find a service socket. Are you running from within psh?")
		return 1
	}

	c := client.New("")
	vars := map[string]string{args[0]: strings.Join(args[1:], " ")}
	if err := c.SetEnvAt(ctx, sockPath, vars); err != nil {
		fmt.Fprintf(w, "psh setenv: %v\n", err)
		return 1
	}
	return 0
}
