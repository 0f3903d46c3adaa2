// Package prompt renders the interactive prompt.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/psh-project/psh/internal/state"
)

// PluginTimeout bounds one call into the prompt plugin.
const PluginTimeout = 200 * time.Millisecond

var (
	homeColor = color.New(color.FgYellow)
	dirColor  = color.New(color.FgHiBlue)
	codeColor = color.New(color.FgWhite, color.BgRed)
)

// Prompter builds the prompt from the shell state and an optional plugin.
type Prompter struct {
	state  *state.State
	plugin *Plugin
	logger *slog.Logger
}

// New returns a Prompter. plugin may be nil.
func New(st *state.State, plugin *Plugin, logger *slog.Logger) *Prompter {
	return &Prompter{state: st, plugin: plugin, logger: logger}
}

// Render returns the prompt to show after a command that exited with
// lastCode.
func (p *Prompter) Render(ctx context.Context, lastCode int) string {
	return Format(p.segment(ctx), lastCode)
}

func (p *Prompter) segment(ctx context.Context) string {
	if p.plugin != nil {
		ctx, cancel := context.WithTimeout(ctx, PluginTimeout)
		defer cancel()
		seg, err := p.plugin.Segment(ctx)
		if err == nil {
			return seg
		}
		p.logger.Warn("prompt plugin failed", "err", err)
	}
	home, _ := p.state.Getenv("HOME")
	return PathSegment(p.state.Dir(), home)
}

// Format lays out the prompt around a segment. A non-zero code is shown
// highlighted after the segment.
func Format(segment string, lastCode int) string {
	extra := ""
	if lastCode != 0 {
		extra = codeColor.Sprint(lastCode) + ">"
	}
	return fmt.Sprintf("> %s >%s ", segment, extra)
}

// PathSegment shows dir relative to home as ~/rel, or in full otherwise.
func PathSegment(dir, home string) string {
	if home != "" {
		home = filepath.Clean(home)
		if rel, ok := underHome(dir, home); ok {
			return "~/" + homeColor.Sprint(rel)
		}
	}
	return dirColor.Sprint(dir)
}

func underHome(dir, home string) (string, bool) {
	if dir == home {
		return "", true
	}
	prefix := home
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(dir, prefix) {
		return "", false
	}
	return dir[len(prefix):], true
}
