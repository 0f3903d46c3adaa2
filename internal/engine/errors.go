package engine

import "errors"

var (
	// ErrUnsetVariable is returned when $NAME refers to a variable that is not set.
	ErrUnsetVariable = errors.New("unset variable")
	// ErrSubcommandFailed is returned when a $(...) command exits non-zero.
	ErrSubcommandFailed = errors.New("subcommand failed")
	// ErrSpawn is returned when an executable cannot be found or started.
	ErrSpawn = errors.New("cannot run command")
	// ErrBuiltinArg is returned for malformed builtin arguments.
	ErrBuiltinArg = errors.New("bad builtin argument")
	// ErrRedirect is returned when a redirect target cannot be created.
	ErrRedirect = errors.New("cannot redirect output")
	// ErrPeer is returned when another shell cannot be reached.
	ErrPeer = errors.New("peer shell unavailable")
	// ErrExit is returned by the exit builtin. Callers stop reading input
	// and terminate successfully.
	ErrExit = errors.New("exit")
)
