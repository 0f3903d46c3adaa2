// Package repl runs the interactive read-eval loop and the startup files.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"

	"github.com/psh-project/psh/internal/engine"
	"github.com/psh-project/psh/internal/journal"
	"github.com/psh-project/psh/internal/logging"
	"github.com/psh-project/psh/internal/prompt"
	"github.com/psh-project/psh/internal/syntax"
)

// Options configures a Loop.
type Options struct {
	Prompter     *prompt.Prompter
	Journal      *journal.Journal // nil disables journaling
	Fs           afero.Fs         // startup files and completion; defaults to the OS
	HistoryLimit int
	Logger       *slog.Logger
}

// Loop reads lines, runs them on a Shell and reports errors.
type Loop struct {
	shell    *engine.Shell
	prompter *prompt.Prompter
	journal  *journal.Journal
	fs       afero.Fs
	limit    int
	logger   *slog.Logger

	// Stderr receives "psh: ..." error reports.
	Stderr io.Writer

	lastCode    int
	lastHistory string
}

// New returns a Loop driving sh.
func New(sh *engine.Shell, opts Options) *Loop {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loop{
		shell:    sh,
		prompter: opts.Prompter,
		journal:  opts.Journal,
		fs:       fs,
		limit:    opts.HistoryLimit,
		logger:   logger.With("component", "repl"),
		Stderr:   sh.Stderr,
	}
}

// RunLine parses and executes one line, waiting for it to finish. The line
// is recorded in the journal whatever the outcome.
func (l *Loop) RunLine(ctx context.Context, line string, stdin engine.Stream) (engine.ExitStatus, error) {
	start := time.Now()
	status, err := l.execute(ctx, line, stdin)

	code := status.Code
	if err != nil && !errors.Is(err, engine.ErrExit) {
		code = 1
	}
	if jerr := l.journal.Record(line, code, err, time.Since(start), l.shell.State.Dir()); jerr != nil {
		l.logger.Warn("journal", "err", jerr)
	}
	return status, err
}

func (l *Loop) execute(ctx context.Context, line string, stdin engine.Stream) (engine.ExitStatus, error) {
	cmd, err := syntax.Parse(line)
	if err != nil {
		stdin.Close()
		return engine.ExitStatus{}, err
	}
	l.logger.Debug("run", "line", line)
	return l.shell.Execute(ctx, cmd, stdin)
}

// Bootstrap runs the alias file and then the rc file. Missing files are
// skipped. It returns engine.ErrExit if either file runs exit.
func (l *Loop) Bootstrap(ctx context.Context, aliasPath, rcPath string) error {
	for _, path := range []string{aliasPath, rcPath} {
		if path == "" {
			continue
		}
		if err := l.RunFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// RunFile runs each line of the file at path with a null stdin. Blank lines
// and lines starting with # are skipped. Errors are reported and do not
// stop the file, except exit.
func (l *Loop) RunFile(ctx context.Context, path string) error {
	data, err := afero.ReadFile(l.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug("startup file missing", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		_, err := l.RunLine(ctx, line, engine.Null())
		if errors.Is(err, engine.ErrExit) {
			return err
		}
		if err != nil {
			fmt.Fprintf(l.Stderr, "psh: rc line %d: %v\n", i+1, err)
		}
	}
	return nil
}

// Run reads lines from the terminal until EOF, exit, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 l.prompt(ctx),
		HistoryFile:            l.shell.State.HistoryPath(),
		HistoryLimit:           l.limit,
		DisableAutoSaveHistory: true,
		AutoComplete:           &fileCompleter{fs: l.fs, state: l.shell.State},
		InterruptPrompt:        "^C",
		Stdin:                  readline.NewCancelableStdin(l.shell.Stdin),
		Stdout:                 l.shell.Stdout,
		Stderr:                 l.shell.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init line editor: %w", err)
	}
	defer rl.Close()

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	for {
		rl.SetPrompt(l.prompt(ctx))
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read line: %w", err)
		}

		if l.keepInHistory(line) {
			if err := rl.SaveHistory(line); err != nil {
				l.logger.Warn("save history", "err", err)
			}
		}
		if l.interact(ctx, line) {
			return nil
		}
	}
}

// interact runs a line typed at the prompt and reports whether the shell
// should exit.
func (l *Loop) interact(ctx context.Context, line string) bool {
	status, err := l.RunLine(ctx, line, engine.Inherit())
	switch {
	case errors.Is(err, engine.ErrExit):
		return true
	case err != nil:
		fmt.Fprintf(l.Stderr, "psh: %v\n", err)
	default:
		l.lastCode = status.Code
	}
	return false
}

func (l *Loop) prompt(ctx context.Context) string {
	if l.prompter == nil {
		return prompt.Format("", l.lastCode)
	}
	return l.prompter.Render(ctx, l.lastCode)
}

// keepInHistory reports whether line belongs in the history file: not
// blank, not starting with a space, not a repeat of the previous entry.
func (l *Loop) keepInHistory(line string) bool {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, " ") || line == l.lastHistory {
		return false
	}
	l.lastHistory = line
	return true
}
