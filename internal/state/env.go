package state

import (
	"sort"
	"strings"
)

// ParseEnviron builds an environment map from "KEY=value" entries such as
// those returned by os.Environ. Entries without '=' are ignored; later
// entries win.
func ParseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// FormatEnviron renders env as sorted "KEY=value" entries suitable for
// exec.Cmd.Env.
func FormatEnviron(env map[string]string) []string {
	keys := SortedKeys(env)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// SortedKeys returns the keys of env in ascending order.
func SortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
