package syntax

import (
	"errors"
	"fmt"
)

// ErrSyntax is matched by every parse error.
var ErrSyntax = errors.New("syntax error")

// Error describes where and why a line failed to parse.
type Error struct {
	Pos int // byte offset into the line
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at column %d: %s", e.Pos+1, e.Msg)
}

func (e *Error) Is(target error) bool {
	return target == ErrSyntax
}
