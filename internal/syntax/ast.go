// Package syntax parses psh command lines into command trees.
package syntax

// Command is a node of a parsed command tree. The set of implementations is
// closed: *Simple, *Pipeline, *And and *Or.
type Command interface {
	command()
}

// Simple is a single invocation: a command name followed by its arguments.
type Simple struct {
	Name string
	Args []Arg
}

// Pipeline connects the stdout of each step to the stdin of the next. The
// last step writes to Redirect when it is non-empty. A pipeline with no
// steps is a no-op.
type Pipeline struct {
	Steps    []Command
	Redirect string
}

// And runs Right only when Left succeeds.
type And struct {
	Left, Right Command
}

// Or runs Right only when Left fails.
type Or struct {
	Left, Right Command
}

func (*Simple) command()   {}
func (*Pipeline) command() {}
func (*And) command()      {}
func (*Or) command()       {}

// Arg is one argument word. The set of implementations is closed: *Literal,
// *EnvRef, *Subcommand and *Concat.
type Arg interface {
	arg()
	// String returns the argument as it would be written on a command line.
	String() string
}

// Literal is verbatim text.
type Literal struct {
	Text string
}

// EnvRef is a reference to an environment variable ($NAME).
type EnvRef struct {
	Name string
}

// Subcommand is a command whose captured stdout becomes the argument value.
type Subcommand struct {
	Command Command
}

// Concat is a word assembled from adjacent parts, such as foo$BAR or
// "dir: $(pwd)". It always has at least two parts.
type Concat struct {
	Parts []Arg
}

func (*Literal) arg()    {}
func (*EnvRef) arg()     {}
func (*Subcommand) arg() {}
func (*Concat) arg()     {}

// Lit is shorthand for a literal argument.
func Lit(text string) *Literal { return &Literal{Text: text} }

// Empty reports whether cmd is the no-op pipeline produced by a blank line.
func Empty(cmd Command) bool {
	p, ok := cmd.(*Pipeline)
	return ok && len(p.Steps) == 0
}
