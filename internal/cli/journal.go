package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/psh-project/psh/internal/journal"
)

// DefaultTail is the number of entries shown by "journal tail".
const DefaultTail = 20

// RunJournal handles the psh journal subcommand.
func RunJournal(w io.Writer, path string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(w, "usage: psh journal <verify|tail [N]>")
		return 1
	}

	switch args[0] {
	case "verify":
		if err := journal.Verify(path); err != nil {
			fmt.Fprintf(w, "journal verification FAILED: %v\n", err)
			return 1
		}
		fmt.Fprintln(w, "journal integrity verified")
		return 0

	case "tail":
		n := DefaultTail
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v < 0 {
				fmt.Fprintf(w, "psh journal: bad count %q\n", args[1])
				return 1
			}
			n = v
		}
		entries, err := journal.Tail(path, n)
		if err != nil {
			fmt.Fprintf(w, "psh journal: %v\n", err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "no journal entries")
			return 0
		}
		for _, e := range entries {
			data, _ := json.MarshalIndent(e, "", "  ")
			fmt.Fprintf(w, "%s\n", data)
		}
		return 0

	default:
		fmt.Fprintf(w, "psh journal: unknown subcommand %q\n", args[0])
		return 1
	}
}
