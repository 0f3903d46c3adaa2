// Package engine executes parsed command trees against real processes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/psh-project/psh/internal/state"
	"github.com/psh-project/psh/internal/syntax"
)

// Peers reaches other shell instances on the same host.
type Peers interface {
	// List returns the pids of other running shells.
	List(ctx context.Context) ([]int, error)
	GetEnv(ctx context.Context, pid int) (map[string]string, error)
	GetStatus(ctx context.Context, pid int) (state.Status, error)
}

// Shell runs commands on behalf of one shell instance.
type Shell struct {
	State *state.State
	Peers Peers // may be nil; peer builtins then fail with ErrPeer

	// Terminal streams used for Inherit and for builtin output.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	logger *slog.Logger
}

// New returns a Shell wired to the process's standard streams.
func New(st *state.State, peers Peers, logger *slog.Logger) *Shell {
	return &Shell{
		State:  st,
		Peers:  peers,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger.With("component", "engine"),
	}
}

// Execute runs cmd with the terminal as stdout and waits for it.
func (sh *Shell) Execute(ctx context.Context, cmd syntax.Command, stdin Stream) (ExitStatus, error) {
	res, err := sh.Run(ctx, cmd, stdin, Inherit())
	if err != nil {
		return ExitStatus{}, err
	}
	return res.Wait()
}

// Run starts cmd with the given streams and returns without waiting for the
// final process. File streams passed in are owned by Run and closed on every
// path.
func (sh *Shell) Run(ctx context.Context, cmd syntax.Command, stdin, stdout Stream) (*Result, error) {
	switch c := cmd.(type) {
	case *syntax.Simple:
		return sh.runSimple(ctx, c, stdin, stdout)
	case *syntax.Pipeline:
		return sh.runPipeline(ctx, c, stdin, stdout)
	case *syntax.And:
		return sh.runConditional(ctx, c.Left, c.Right, stdin, stdout, true)
	case *syntax.Or:
		return sh.runConditional(ctx, c.Left, c.Right, stdin, stdout, false)
	}
	closeStreams(stdin, stdout)
	return nil, fmt.Errorf("unknown command node %T", cmd)
}

// done is the Result of a command that produced no process.
func (sh *Shell) done() *Result {
	return &Result{shell: sh}
}

func (sh *Shell) runSimple(ctx context.Context, s *syntax.Simple, stdin, stdout Stream) (*Result, error) {
	b, err := lookupBuiltin(s)
	if err != nil {
		closeStreams(stdin, stdout)
		return nil, err
	}
	if b != nil {
		closeStreams(stdin, stdout)
		if err := b.run(ctx, sh); err != nil {
			return nil, err
		}
		return sh.done(), nil
	}

	name, args := sh.resolveAlias(s.Name, s.Args)
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, name)
	for _, a := range args {
		v, err := sh.eval(ctx, a)
		if err != nil {
			closeStreams(stdin, stdout)
			return nil, err
		}
		argv = append(argv, v)
	}
	return sh.spawn(argv, stdin, stdout)
}

func (sh *Shell) spawn(argv []string, stdin, stdout Stream) (*Result, error) {
	name := argv[0]
	pathVar, _ := sh.State.Getenv("PATH")
	path, err := lookPath(name, pathVar, sh.State.Dir())
	if err != nil {
		closeStreams(stdin, stdout)
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
	}

	cmd := &exec.Cmd{
		Path: path,
		Args: argv,
		Env:  sh.State.Environ(),
		Dir:  sh.State.Dir(),
	}
	if sh.Stderr != nil {
		cmd.Stderr = sh.Stderr
	}
	switch stdin.kind {
	case streamInherit:
		if sh.Stdin != nil {
			cmd.Stdin = sh.Stdin
		}
	case streamFile:
		cmd.Stdin = stdin.file
	}

	var pipeR, pipeW *os.File
	switch stdout.kind {
	case streamInherit:
		if sh.Stdout != nil {
			cmd.Stdout = sh.Stdout
		}
	case streamFile:
		cmd.Stdout = stdout.file
	case streamPiped:
		pipeR, pipeW, err = os.Pipe()
		if err != nil {
			closeStreams(stdin, stdout)
			return nil, fmt.Errorf("%w: %s: pipe: %v", ErrSpawn, name, err)
		}
		cmd.Stdout = pipeW
	}

	sh.State.BeginCommand(name)
	err = cmd.Start()
	// The child holds its own copies now.
	closeStreams(stdin, stdout)
	if pipeW != nil {
		pipeW.Close()
	}
	if err != nil {
		if pipeR != nil {
			pipeR.Close()
		}
		sh.State.EndCommand(0)
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
	}
	sh.State.SetRunningPid(cmd.Process.Pid)
	sh.logger.Debug("spawned", "command", name, "pid", cmd.Process.Pid, "stdin", stdin.String(), "stdout", stdout.String())

	return &Result{shell: sh, name: name, cmd: cmd, stdout: pipeR}, nil
}

func (sh *Shell) runPipeline(ctx context.Context, p *syntax.Pipeline, stdin, stdout Stream) (*Result, error) {
	if len(p.Steps) == 0 {
		closeStreams(stdin, stdout)
		return sh.done(), nil
	}

	var upstream []*Result
	in := stdin
	last := len(p.Steps) - 1
	for i, step := range p.Steps {
		if i < last {
			res, err := sh.Run(ctx, step, in, Piped())
			if err != nil {
				stdout.Close()
				sh.abandon(upstream)
				return nil, err
			}
			upstream = append(upstream, res)
			in = FileStream(res.TakeStdout())
			continue
		}

		out := stdout
		if p.Redirect != "" {
			stdout.Close()
			f, err := os.OpenFile(sh.State.Resolve(p.Redirect), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
			if err != nil {
				in.Close()
				sh.abandon(upstream)
				return nil, fmt.Errorf("%w: %v", ErrRedirect, err)
			}
			out = FileStream(f)
		}
		res, err := sh.Run(ctx, step, in, out)
		if err != nil {
			sh.abandon(upstream)
			return nil, err
		}
		res.upstream = append(res.upstream, upstream...)
		return res, nil
	}
	panic("unreachable")
}

// abandon reaps already-started stages in the background after a later
// stage failed to start.
func (sh *Shell) abandon(started []*Result) {
	if len(started) == 0 {
		return
	}
	go func() {
		for _, r := range started {
			r.Wait()
		}
	}()
}

// runConditional runs left, then runs right only when left's success
// matches onSuccess. The left operand is always given the terminal as
// stdout.
func (sh *Shell) runConditional(ctx context.Context, left, right syntax.Command, stdin, stdout Stream, onSuccess bool) (*Result, error) {
	stdout.Close()
	res, err := sh.Run(ctx, left, stdin, Inherit())
	if err != nil {
		return nil, err
	}
	status, err := res.Wait()
	if err != nil {
		return nil, err
	}
	if status.Success() != onSuccess {
		return res, nil
	}
	return sh.Run(ctx, right, Null(), Inherit())
}
