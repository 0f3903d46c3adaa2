package syntax

import (
	"fmt"
	"strings"
)

// Format renders cmd as command-line text. Parsing the result yields the
// same tree for any tree produced by Parse.
func Format(cmd Command) string {
	var b strings.Builder
	format(&b, cmd)
	return b.String()
}

func format(b *strings.Builder, cmd Command) {
	switch c := cmd.(type) {
	case *Simple:
		b.WriteString(Quote(c.Name))
		for _, a := range c.Args {
			b.WriteByte(' ')
			b.WriteString(a.String())
		}
	case *Pipeline:
		for i, step := range c.Steps {
			if i > 0 {
				b.WriteString(" | ")
			}
			format(b, step)
		}
		if c.Redirect != "" {
			b.WriteString(" > ")
			b.WriteString(Quote(c.Redirect))
		}
	case *And:
		format(b, c.Left)
		b.WriteString(" && ")
		format(b, c.Right)
	case *Or:
		format(b, c.Left)
		b.WriteString(" || ")
		format(b, c.Right)
	}
}

// Quote returns s written so that it reads back as a single literal word.
func Quote(s string) string {
	if s != "" && isBare(s) {
		return s
	}
	return quoteAlways(s)
}

func quoteAlways(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.ContainsAny(s, `"$`) {
		return `"` + s + `"`
	}
	// Single-quote each piece and join them with a double-quoted '.
	pieces := strings.Split(s, "'")
	for i, piece := range pieces {
		pieces[i] = "'" + piece + "'"
	}
	return strings.Join(pieces, `"'"`)
}

func isBare(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isBareChar(s[i]) {
			return false
		}
	}
	return true
}

func (a *Literal) String() string { return Quote(a.Text) }

func (a *EnvRef) String() string { return "$" + a.Name }

func (a *Subcommand) String() string { return "$(" + Format(a.Command) + ")" }

func (a *Concat) String() string {
	var b strings.Builder
	for i, part := range a.Parts {
		lit, ok := part.(*Literal)
		if ok && i > 0 && lit.Text != "" && isNameChar(lit.Text[0]) {
			if _, afterRef := a.Parts[i-1].(*EnvRef); afterRef {
				b.WriteString(quoteAlways(lit.Text))
				continue
			}
		}
		b.WriteString(part.String())
	}
	return b.String()
}

// Dump renders cmd as an S-expression that shows the tree structure.
func Dump(cmd Command) string {
	var b strings.Builder
	dump(&b, cmd)
	return b.String()
}

func dump(b *strings.Builder, cmd Command) {
	switch c := cmd.(type) {
	case *Simple:
		fmt.Fprintf(b, "(simple %q", c.Name)
		for _, a := range c.Args {
			b.WriteByte(' ')
			dumpArg(b, a)
		}
		b.WriteByte(')')
	case *Pipeline:
		b.WriteString("(pipeline")
		for _, step := range c.Steps {
			b.WriteByte(' ')
			dump(b, step)
		}
		if c.Redirect != "" {
			fmt.Fprintf(b, " (redirect %q)", c.Redirect)
		}
		b.WriteByte(')')
	case *And:
		b.WriteString("(and ")
		dump(b, c.Left)
		b.WriteByte(' ')
		dump(b, c.Right)
		b.WriteByte(')')
	case *Or:
		b.WriteString("(or ")
		dump(b, c.Left)
		b.WriteByte(' ')
		dump(b, c.Right)
		b.WriteByte(')')
	}
}

func dumpArg(b *strings.Builder, arg Arg) {
	switch a := arg.(type) {
	case *Literal:
		fmt.Fprintf(b, "%q", a.Text)
	case *EnvRef:
		b.WriteString("$" + a.Name)
	case *Subcommand:
		b.WriteString("(subcommand ")
		dump(b, a.Command)
		b.WriteByte(')')
	case *Concat:
		b.WriteString("(concat")
		for _, part := range a.Parts {
			b.WriteByte(' ')
			dumpArg(b, part)
		}
		b.WriteByte(')')
	}
}
