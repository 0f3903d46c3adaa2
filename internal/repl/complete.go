package repl

import (
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/spf13/afero"

	"github.com/psh-project/psh/internal/state"
)

// fileCompleter completes the word under the cursor as a path relative to
// the shell's working directory.
type fileCompleter struct {
	fs    afero.Fs
	state *state.State
}

// Do returns the suffixes that complete the current word and the length of
// the part of that word already typed.
func (c *fileCompleter) Do(line []rune, pos int) ([][]rune, int) {
	word, ok := currentWord(string(line[:pos]))
	if !ok {
		return nil, 0
	}

	dir, base := "", word
	if i := strings.LastIndex(word, "/"); i >= 0 {
		dir, base = word[:i+1], word[i+1:]
	}
	search := c.state.Dir()
	if dir != "" {
		search = c.state.Resolve(dir)
	}

	entries, err := afero.ReadDir(c.fs, search)
	if err != nil {
		return nil, 0
	}
	var out [][]rune
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		suffix := name[len(base):]
		if e.IsDir() {
			suffix += "/"
		} else {
			suffix += " "
		}
		out = append(out, []rune(suffix))
	}
	return out, len([]rune(base))
}

// currentWord returns the unquoted word ending at the end of text. It is
// empty when text ends in whitespace. ok is false when text has an
// unterminated quote.
func currentWord(text string) (string, bool) {
	words, err := shlex.Split(text, true)
	if err != nil {
		return "", false
	}
	if len(words) == 0 || strings.HasSuffix(text, " ") || strings.HasSuffix(text, "\t") {
		return "", true
	}
	return words[len(words)-1], true
}
