package engine

import "github.com/psh-project/psh/internal/syntax"

// resolveAlias substitutes one level of alias. The alias's stored arguments
// come before the caller's. The substituted command is not looked up again.
func (sh *Shell) resolveAlias(name string, args []syntax.Arg) (string, []syntax.Arg) {
	a, ok := sh.State.Alias(name)
	if !ok {
		return name, args
	}
	merged := make([]syntax.Arg, 0, len(a.Args)+len(args))
	merged = append(merged, a.Args...)
	merged = append(merged, args...)
	return a.Command, merged
}
