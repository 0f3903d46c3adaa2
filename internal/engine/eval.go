package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/psh-project/psh/internal/syntax"
)

// eval turns an argument into its string value.
func (sh *Shell) eval(ctx context.Context, arg syntax.Arg) (string, error) {
	switch a := arg.(type) {
	case *syntax.Literal:
		return a.Text, nil
	case *syntax.EnvRef:
		v, ok := sh.State.Getenv(a.Name)
		if !ok {
			return "", fmt.Errorf("%w: $%s", ErrUnsetVariable, a.Name)
		}
		return v, nil
	case *syntax.Subcommand:
		return sh.capture(ctx, a.Command)
	case *syntax.Concat:
		var b strings.Builder
		for _, part := range a.Parts {
			v, err := sh.eval(ctx, part)
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unknown argument %T", arg)
}

// capture runs cmd and returns its stdout with trailing whitespace removed.
func (sh *Shell) capture(ctx context.Context, cmd syntax.Command) (string, error) {
	res, err := sh.Run(ctx, cmd, Null(), Piped())
	if err != nil {
		return "", err
	}
	var out []byte
	if r := res.TakeStdout(); r != nil {
		out, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			res.Wait()
			return "", fmt.Errorf("read $(%s): %w", syntax.Format(cmd), err)
		}
	}
	status, err := res.Wait()
	if err != nil {
		return "", err
	}
	if !status.Success() {
		return "", fmt.Errorf("%w: $(%s): %s", ErrSubcommandFailed, syntax.Format(cmd), status)
	}
	return strings.TrimRight(string(out), " \t\r\n"), nil
}
