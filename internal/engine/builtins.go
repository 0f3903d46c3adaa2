package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/psh-project/psh/internal/state"
	"github.com/psh-project/psh/internal/syntax"
)

// builtin is a command run inside the shell process. Builtins never start a
// child and are matched before aliases.
type builtin interface {
	run(ctx context.Context, sh *Shell) error
}

type (
	cdBuiltin struct {
		dir syntax.Arg // nil means $HOME, or / when HOME is unset
	}
	setBuiltin struct {
		key   string
		value syntax.Arg
	}
	aliasListBuiltin   struct{}
	aliasDefineBuiltin struct {
		name, command syntax.Arg
		args          []syntax.Arg
	}
	exitBuiltin    struct{}
	copyenvBuiltin struct {
		pid, key syntax.Arg
	}
	diffenvBuiltin struct {
		pid syntax.Arg
	}
	pshlBuiltin struct{}
	// usageBuiltin reports wrong arity without failing the command.
	usageBuiltin struct {
		msg string
	}
)

// lookupBuiltin returns the builtin named by s, or nil if s is not one.
func lookupBuiltin(s *syntax.Simple) (builtin, error) {
	args := s.Args
	switch s.Name {
	case "cd":
		b := cdBuiltin{}
		if len(args) > 0 {
			b.dir = args[0]
		}
		return b, nil
	case "set":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: set requires a key and a value", ErrBuiltinArg)
		}
		key, ok := args[0].(*syntax.Literal)
		if !ok {
			return nil, fmt.Errorf("%w: set key must be a literal, got %s", ErrBuiltinArg, args[0])
		}
		return setBuiltin{key: key.Text, value: args[1]}, nil
	case "alias":
		if len(args) < 2 {
			return aliasListBuiltin{}, nil
		}
		return aliasDefineBuiltin{name: args[0], command: args[1], args: args[2:]}, nil
	case "exit":
		return exitBuiltin{}, nil
	case "copyenv":
		if len(args) != 2 {
			return usageBuiltin{msg: "copyenv takes a pid and a variable name"}, nil
		}
		return copyenvBuiltin{pid: args[0], key: args[1]}, nil
	case "diffenv":
		if len(args) != 1 {
			return usageBuiltin{msg: "diffenv requires a process id"}, nil
		}
		return diffenvBuiltin{pid: args[0]}, nil
	case "pshl":
		if len(args) != 0 {
			return usageBuiltin{msg: "pshl doesn't take any args"}, nil
		}
		return pshlBuiltin{}, nil
	}
	return nil, nil
}

func (sh *Shell) stdout() io.Writer {
	if sh.Stdout == nil {
		return io.Discard
	}
	return sh.Stdout
}

func (sh *Shell) stderr() io.Writer {
	if sh.Stderr == nil {
		return io.Discard
	}
	return sh.Stderr
}

func (b cdBuiltin) run(ctx context.Context, sh *Shell) error {
	var dir string
	if b.dir == nil {
		home, ok := sh.State.Getenv("HOME")
		if !ok {
			home = "/"
		}
		dir = home
	} else {
		v, err := sh.eval(ctx, b.dir)
		if err != nil {
			return err
		}
		dir = v
		// A variable name that reached us as a literal, such as '$HOME'.
		if name, ok := strings.CutPrefix(dir, "$"); ok && name != "" {
			dir, _ = sh.State.Getenv(name)
		}
	}
	if err := sh.State.Chdir(dir); err != nil {
		fmt.Fprintf(sh.stderr(), "cd: %v\n", err)
	}
	return nil
}

func (b setBuiltin) run(ctx context.Context, sh *Shell) error {
	v, err := sh.eval(ctx, b.value)
	if err != nil {
		return err
	}
	sh.State.Setenv(b.key, strings.TrimSpace(v))
	return nil
}

func (aliasListBuiltin) run(_ context.Context, sh *Shell) error {
	for _, a := range sh.State.Aliases() {
		fmt.Fprintln(sh.stdout(), a)
	}
	return nil
}

func (b aliasDefineBuiltin) run(ctx context.Context, sh *Shell) error {
	name, err := sh.eval(ctx, b.name)
	if err != nil {
		return err
	}
	command, err := sh.eval(ctx, b.command)
	if err != nil {
		return err
	}
	sh.State.SetAlias(state.Alias{Name: name, Command: command, Args: b.args})
	return nil
}

func (exitBuiltin) run(context.Context, *Shell) error {
	return ErrExit
}

func (b usageBuiltin) run(_ context.Context, sh *Shell) error {
	fmt.Fprintln(sh.stderr(), b.msg)
	return nil
}

func (sh *Shell) evalPid(ctx context.Context, arg syntax.Arg) (int, error) {
	v, err := sh.eval(ctx, arg)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: invalid pid %q", ErrBuiltinArg, v)
	}
	return pid, nil
}

func (sh *Shell) peerEnv(ctx context.Context, pid int) (map[string]string, error) {
	if sh.Peers == nil {
		return nil, fmt.Errorf("%w: no peer client configured", ErrPeer)
	}
	env, err := sh.Peers.GetEnv(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %v", ErrPeer, pid, err)
	}
	return env, nil
}

func (b copyenvBuiltin) run(ctx context.Context, sh *Shell) error {
	pid, err := sh.evalPid(ctx, b.pid)
	if err != nil {
		return err
	}
	key, err := sh.eval(ctx, b.key)
	if err != nil {
		return err
	}
	env, err := sh.peerEnv(ctx, pid)
	if err != nil {
		return err
	}
	sh.State.Setenv(key, env[key])
	return nil
}

func (b diffenvBuiltin) run(ctx context.Context, sh *Shell) error {
	pid, err := sh.evalPid(ctx, b.pid)
	if err != nil {
		return err
	}
	theirs, err := sh.peerEnv(ctx, pid)
	if err != nil {
		return err
	}
	local := sh.State.Env()
	w := sh.stdout()
	for _, k := range state.SortedKeys(theirs) {
		v := theirs[k]
		mine, ok := local[k]
		switch {
		case !ok:
			fmt.Fprintf(w, "+%s: %s\n", k, v)
		case mine != v:
			fmt.Fprintf(w, " %s:\n\tLocal:  %s\n\tTheirs: %s\n", k, mine, v)
		}
	}
	return nil
}

func (pshlBuiltin) run(ctx context.Context, sh *Shell) error {
	return ListPeers(ctx, sh.stdout(), sh.Peers, sh.logger)
}

// ListPeers writes one "pid: command (dir)" line per reachable shell.
func ListPeers(ctx context.Context, w io.Writer, peers Peers, logger *slog.Logger) error {
	if peers == nil {
		return fmt.Errorf("%w: no peer client configured", ErrPeer)
	}
	pids, err := peers.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeer, err)
	}
	for _, pid := range pids {
		st, err := peers.GetStatus(ctx, pid)
		if err != nil {
			logger.Debug("peer status unavailable", "pid", pid, "err", err)
			continue
		}
		fmt.Fprintf(w, "%d: %s (%s)\n", pid, st.CurrentCommand, st.WorkingDir)
	}
	return nil
}
