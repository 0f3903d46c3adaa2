package engine

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// ExitStatus is how a command finished.
type ExitStatus struct {
	Code   int
	Signal syscall.Signal // non-zero when the process was killed by a signal
}

// Success reports whether the command exited with status zero.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == 0
}

func (s ExitStatus) String() string {
	if s.Signal != 0 {
		return "signal: " + s.Signal.String()
	}
	return "exit status " + strconv.Itoa(s.Code)
}

// Result is the outcome of starting a command. It may hold a running child,
// the read end of that child's stdout, and the upstream stages of a pipeline
// that must be reaped along with it. A Result without a child (a builtin or
// an empty pipeline) waits successfully.
type Result struct {
	shell    *Shell
	name     string
	cmd      *exec.Cmd
	stdout   *os.File
	upstream []*Result

	waited bool
	status ExitStatus
	err    error
}

// Pid returns the process id of the child, or 0 when there is none.
func (r *Result) Pid() int {
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// TakeStdout hands over the read end of the child's stdout pipe. It returns
// nil if stdout was not piped or has already been taken.
func (r *Result) TakeStdout() *os.File {
	f := r.stdout
	r.stdout = nil
	return f
}

// Wait blocks until the child and every upstream stage exit, then returns
// the status of the child. The status is cached; later calls return it
// immediately. An untaken stdout pipe is closed first so a child writing to
// it cannot block forever.
func (r *Result) Wait() (ExitStatus, error) {
	if !r.waited {
		r.waited = true
		if f := r.TakeStdout(); f != nil {
			f.Close()
		}
		if r.cmd != nil {
			err := r.cmd.Wait()
			r.status, r.err = exitStatus(r.cmd.ProcessState, err)
			r.shell.State.EndCommand(r.cmd.Process.Pid)
			r.shell.logger.Debug("reaped", "command", r.name, "pid", r.cmd.Process.Pid, "status", r.status.String())
		}
	}
	for _, up := range r.upstream {
		// Keep the stage being waited on as the foreground process so an
		// interrupt still reaches it.
		if pid := up.Pid(); pid != 0 && !up.waited {
			r.shell.State.SetRunningPid(pid)
		}
		up.Wait()
	}
	return r.status, r.err
}

func exitStatus(ps *os.ProcessState, err error) (ExitStatus, error) {
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return ExitStatus{Code: -1}, err
	}
	if ps == nil {
		return ExitStatus{Code: -1}, err
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: 128 + int(ws.Signal()), Signal: ws.Signal()}, nil
	}
	return ExitStatus{Code: ps.ExitCode()}, nil
}
