// Package state holds the mutable state of one shell instance: its aliases,
// environment, working directory, and the command currently in the
// foreground. The interactive loop, the signal forwarder and the peer
// service all share one *State.
package state

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/psh-project/psh/internal/syntax"
)

// Alias maps a name to a command and a list of unevaluated arguments that
// are prepended to the caller's arguments.
type Alias struct {
	Name    string
	Command string
	Args    []syntax.Arg
}

// String renders the alias in the form accepted by the parser:
// name -> command args...
func (a Alias) String() string {
	parts := make([]string, 0, len(a.Args)+3)
	parts = append(parts, syntax.Quote(a.Name), syntax.OpAlias, syntax.Quote(a.Command))
	for _, arg := range a.Args {
		parts = append(parts, arg.String())
	}
	return strings.Join(parts, " ")
}

// Status is what a shell reports to its peers.
type Status struct {
	CurrentCommand string
	WorkingDir     string
}

// State is safe for concurrent use. The lock is never held while waiting on
// a child process.
type State struct {
	mu             sync.Mutex
	aliases        map[string]Alias
	currentCommand string
	runningPid     int
	historyPath    string
	env            map[string]string
	dir            string
}

// New returns a State seeded with the given environment entries and working
// directory.
func New(historyPath string, environ []string, dir string) *State {
	return &State{
		aliases:     make(map[string]Alias),
		historyPath: historyPath,
		env:         ParseEnviron(environ),
		dir:         filepath.Clean(dir),
	}
}

// HistoryPath returns the file interactive history is saved to.
func (s *State) HistoryPath() string {
	return s.historyPath
}

// SetAlias defines or replaces an alias.
func (s *State) SetAlias(a Alias) {
	a.Args = append([]syntax.Arg(nil), a.Args...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[a.Name] = a
}

// Alias looks up an alias by name.
func (s *State) Alias(name string) (Alias, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[name]
	if ok {
		a.Args = append([]syntax.Arg(nil), a.Args...)
	}
	return a, ok
}

// Aliases returns every alias sorted by name.
func (s *State) Aliases() []Alias {
	s.mu.Lock()
	out := make([]Alias, 0, len(s.aliases))
	for _, a := range s.aliases {
		out = append(out, a)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BeginCommand records name as the command in the foreground.
func (s *State) BeginCommand(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentCommand = name
}

// SetRunningPid records the pid that interrupts are forwarded to.
func (s *State) SetRunningPid(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningPid = pid
}

// EndCommand clears the current command. The running pid is cleared only if
// it still refers to pid, so reaping an upstream pipeline stage does not
// forget a later stage.
func (s *State) EndCommand(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentCommand = ""
	if pid == 0 || s.runningPid == pid {
		s.runningPid = 0
	}
}

// RunningPid returns the foreground process id, if any.
func (s *State) RunningPid() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningPid, s.runningPid != 0
}

// Status returns the current command and working directory.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{CurrentCommand: s.currentCommand, WorkingDir: s.dir}
}

// Getenv looks up a variable in the shell environment.
func (s *State) Getenv(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.env[key]
	return v, ok
}

// Setenv sets a variable in the shell environment.
func (s *State) Setenv(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env[key] = value
}

// SetenvAll sets every variable in vars.
func (s *State) SetenvAll(vars map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range vars {
		s.env[k] = v
	}
}

// Env returns a copy of the shell environment.
func (s *State) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	env := make(map[string]string, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return env
}

// Environ returns the environment as sorted "KEY=value" entries.
func (s *State) Environ() []string {
	return FormatEnviron(s.Env())
}

// Dir returns the working directory.
func (s *State) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Resolve interprets path relative to the working directory.
func (s *State) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.Dir(), path)
}

// Chdir changes the working directory. It fails unless dir names an existing
// directory.
func (s *State) Chdir(dir string) error {
	target := s.Resolve(dir)
	fi, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &os.PathError{Op: "chdir", Path: target, Err: syscall.ENOTDIR}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = target
	return nil
}
