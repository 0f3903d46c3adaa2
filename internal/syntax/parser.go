package syntax

import (
	"fmt"
	"strings"
)

// Operators recognised between words.
const (
	OpPipe     = "|"
	OpAnd      = "&&"
	OpOr       = "||"
	OpRedirect = ">"
	OpAlias    = "->"
)

// Parse turns one input line into a command tree.
//
// Precedence from tightest to loosest is invocation, pipeline (with an
// optional trailing "> path"), then the && / || chain. The chain is folded
// right to left, so "a && b || c" parses as And(a, Or(b, c)). A line of the
// form "name -> command args..." is sugar for "alias name command args...".
// A blank line parses to an empty Pipeline.
func Parse(line string) (Command, error) {
	p := &parser{src: line}
	p.skipSpace()
	if p.eof() {
		return &Pipeline{}, nil
	}

	cmd, ok, err := p.aliasDef()
	if err != nil {
		return nil, err
	}
	if !ok {
		cmd, err = p.chain()
		if err != nil {
			return nil, err
		}
	}

	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %s", p.near())
	}
	return cmd, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

func (p *parser) skipSpace() {
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) *Error {
	return p.errorAt(p.pos, format, args...)
}

func (p *parser) errorAt(pos int, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// near describes the input at the current position for error messages.
func (p *parser) near() string {
	if p.eof() {
		return "end of line"
	}
	rest := p.src[p.pos:]
	for _, op := range []string{OpAnd, OpOr} {
		if strings.HasPrefix(rest, op) {
			return fmt.Sprintf("%q", op)
		}
	}
	if isOperator(rest[0]) {
		return fmt.Sprintf("%q", rest[:1])
	}
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		rest = rest[:i]
	}
	return fmt.Sprintf("%q", rest)
}

// aliasDef recognises "name -> command args...". On a miss the position is
// left untouched.
func (p *parser) aliasDef() (Command, bool, error) {
	start := p.pos
	name, ok, err := p.word()
	if err != nil || !ok {
		p.pos = start
		return nil, false, err
	}
	p.skipSpace()
	if !p.hasPrefix(OpAlias) || (p.pos+len(OpAlias) < len(p.src) && !isSpace(p.src[p.pos+len(OpAlias)])) {
		p.pos = start
		return nil, false, nil
	}
	if _, isLit := name.(*Literal); !isLit {
		return nil, false, p.errorAt(start, "alias name must be a literal word")
	}
	p.pos += len(OpAlias)

	target, err := p.invocation()
	if err != nil {
		return nil, false, err
	}
	args := make([]Arg, 0, len(target.Args)+2)
	args = append(args, name, Lit(target.Name))
	args = append(args, target.Args...)
	return &Simple{Name: "alias", Args: args}, true, nil
}

// chain parses pipelines joined by && and ||.
func (p *parser) chain() (Command, error) {
	first, err := p.pipeline()
	if err != nil {
		return nil, err
	}
	operands := []Command{first}
	var ops []string
	for {
		p.skipSpace()
		var op string
		switch {
		case p.hasPrefix(OpAnd):
			op = OpAnd
		case p.hasPrefix(OpOr):
			op = OpOr
		default:
			return foldRight(operands, ops), nil
		}
		p.pos += len(op)
		next, err := p.pipeline()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
		ops = append(ops, op)
	}
}

func foldRight(operands []Command, ops []string) Command {
	right := operands[len(operands)-1]
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i] == OpAnd {
			right = &And{Left: operands[i], Right: right}
		} else {
			right = &Or{Left: operands[i], Right: right}
		}
	}
	return right
}

func (p *parser) pipeline() (Command, error) {
	first, err := p.invocation()
	if err != nil {
		return nil, err
	}
	steps := []Command{first}
	for {
		p.skipSpace()
		if !p.hasPrefix(OpPipe) || p.hasPrefix(OpOr) {
			break
		}
		p.pos += len(OpPipe)
		next, err := p.invocation()
		if err != nil {
			return nil, err
		}
		steps = append(steps, next)
	}

	var redirect string
	if p.hasPrefix(OpRedirect) {
		p.pos += len(OpRedirect)
		p.skipSpace()
		at := p.pos
		target, ok, err := p.word()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("%s requires a file path", OpRedirect)
		}
		lit, isLit := target.(*Literal)
		if !isLit || lit.Text == "" {
			return nil, p.errorAt(at, "redirect target must be a literal path")
		}
		redirect = lit.Text
	}

	if len(steps) == 1 && redirect == "" {
		return steps[0], nil
	}
	return &Pipeline{Steps: steps, Redirect: redirect}, nil
}

func (p *parser) invocation() (*Simple, error) {
	p.skipSpace()
	at := p.pos
	name, ok, err := p.word()
	if err != nil {
		return nil, err
	}
	if !ok {
		if p.eof() {
			return nil, p.errorf("missing command name")
		}
		return nil, p.errorf("missing command name before %s", p.near())
	}
	lit, isLit := name.(*Literal)
	if !isLit {
		return nil, p.errorAt(at, "command name must be a literal word")
	}
	if lit.Text == "" {
		return nil, p.errorAt(at, "missing command name")
	}

	s := &Simple{Name: lit.Text}
	for {
		p.skipSpace()
		// An arrow is only meaningful right after an alias name.
		if p.hasPrefix(OpAlias) {
			return nil, p.errorf("unexpected %s", p.near())
		}
		arg, ok, err := p.word()
		if err != nil {
			return nil, err
		}
		if !ok {
			return s, nil
		}
		s.Args = append(s.Args, arg)
	}
}

// word reads one argument word starting at the current position. It reports
// false without consuming anything when the position is at an operator or the
// end of the line.
func (p *parser) word() (Arg, bool, error) {
	start := p.pos
	var parts []Arg
	for !p.eof() {
		c := p.src[p.pos]
		if isSpace(c) || isOperator(c) {
			break
		}
		switch c {
		case '\'':
			lit, err := p.singleQuoted()
			if err != nil {
				return nil, false, err
			}
			parts = appendPart(parts, lit)
		case '"':
			inner, err := p.doubleQuoted()
			if err != nil {
				return nil, false, err
			}
			for _, part := range inner {
				parts = appendPart(parts, part)
			}
		case '$':
			part, err := p.dollar()
			if err != nil {
				return nil, false, err
			}
			parts = appendPart(parts, part)
		default:
			from := p.pos
			for !p.eof() && isBareChar(p.src[p.pos]) {
				p.pos++
			}
			parts = appendPart(parts, Lit(p.src[from:p.pos]))
		}
	}

	switch {
	case p.pos == start:
		return nil, false, nil
	case len(parts) == 0:
		return Lit(""), true, nil
	case len(parts) == 1:
		return parts[0], true, nil
	}
	return &Concat{Parts: parts}, true, nil
}

// appendPart adds part to a word, merging adjacent literals.
func appendPart(parts []Arg, part Arg) []Arg {
	lit, ok := part.(*Literal)
	if !ok {
		return append(parts, part)
	}
	if n := len(parts); n > 0 {
		if prev, ok := parts[n-1].(*Literal); ok {
			parts[n-1] = Lit(prev.Text + lit.Text)
			return parts
		}
	}
	return append(parts, lit)
}

func (p *parser) singleQuoted() (*Literal, error) {
	open := p.pos
	end := strings.IndexByte(p.src[open+1:], '\'')
	if end < 0 {
		return nil, p.errorAt(open, "unterminated quote")
	}
	p.pos = open + 1 + end + 1
	return Lit(p.src[open+1 : open+1+end]), nil
}

// doubleQuoted reads "..." in which $NAME and $(...) are interpolated.
func (p *parser) doubleQuoted() ([]Arg, error) {
	open := p.pos
	p.pos++
	var parts []Arg
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			parts = appendPart(parts, Lit(text.String()))
			text.Reset()
		}
	}
	for !p.eof() {
		switch c := p.src[p.pos]; c {
		case '"':
			p.pos++
			flush()
			return parts, nil
		case '$':
			flush()
			part, err := p.dollar()
			if err != nil {
				return nil, err
			}
			parts = appendPart(parts, part)
		default:
			text.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.errorAt(open, "unterminated quote")
}

// dollar reads $NAME or $(chain). A '$' followed by anything else is literal.
func (p *parser) dollar() (Arg, error) {
	open := p.pos
	p.pos++
	switch {
	case p.peek() == '(':
		p.pos++
		cmd, err := p.chain()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			if p.eof() {
				return nil, p.errorAt(open, "unterminated $(")
			}
			return nil, p.errorf("unexpected %s inside $(", p.near())
		}
		p.pos++
		return &Subcommand{Command: cmd}, nil
	case isNameStart(p.peek()):
		from := p.pos
		for !p.eof() && isNameChar(p.src[p.pos]) {
			p.pos++
		}
		return &EnvRef{Name: p.src[from:p.pos]}, nil
	}
	return Lit("$"), nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isOperator(c byte) bool {
	switch c {
	case '|', '&', '>', '(', ')':
		return true
	}
	return false
}

func isBareChar(c byte) bool {
	return !isSpace(c) && !isOperator(c) && c != '\'' && c != '"' && c != '$'
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
