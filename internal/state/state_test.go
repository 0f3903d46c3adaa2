package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psh-project/psh/internal/syntax"
)

func TestAliasOverwrite(t *testing.T) {
	s := New("", nil, "/")
	s.SetAlias(Alias{Name: "ll", Command: "ls", Args: []syntax.Arg{syntax.Lit("-l")}})
	s.SetAlias(Alias{Name: "ll", Command: "ls", Args: []syntax.Arg{syntax.Lit("-la")}})

	a, ok := s.Alias("ll")
	require.True(t, ok)
	assert.Equal(t, []syntax.Arg{syntax.Lit("-la")}, a.Args)
	assert.Len(t, s.Aliases(), 1)
}

func TestAliasesSorted(t *testing.T) {
	s := New("", nil, "/")
	for _, name := range []string{"zz", "aa", "mm"} {
		s.SetAlias(Alias{Name: name, Command: "true"})
	}
	var names []string
	for _, a := range s.Aliases() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"aa", "mm", "zz"}, names)
}

func TestAliasString(t *testing.T) {
	a := Alias{
		Name:    "greet",
		Command: "echo",
		Args:    []syntax.Arg{syntax.Lit("hello there"), &syntax.EnvRef{Name: "USER"}},
	}
	assert.Equal(t, "greet -> echo 'hello there' $USER", a.String())

	cmd, err := syntax.Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, `(simple "alias" "greet" "echo" "hello there" $USER)`, syntax.Dump(cmd))
}

func TestRunningPidClearedOnlyForMatchingPid(t *testing.T) {
	s := New("", nil, "/")
	s.BeginCommand("sleep")
	s.SetRunningPid(42)

	s.EndCommand(7)
	pid, ok := s.RunningPid()
	assert.True(t, ok)
	assert.Equal(t, 42, pid)
	assert.Empty(t, s.Status().CurrentCommand)

	s.EndCommand(42)
	_, ok = s.RunningPid()
	assert.False(t, ok)
}

func TestEnvSeededFromEnviron(t *testing.T) {
	s := New("", []string{"A=1", "B=x=y", "broken", "A=2"}, "/")
	v, ok := s.Getenv("A")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	v, _ = s.Getenv("B")
	assert.Equal(t, "x=y", v)
	_, ok = s.Getenv("broken")
	assert.False(t, ok)

	s.SetenvAll(map[string]string{"C": "3"})
	assert.Equal(t, []string{"A=2", "B=x=y", "C=3"}, s.Environ())
}

func TestChdir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0o644))

	s := New("", nil, root)
	require.NoError(t, s.Chdir("sub"))
	assert.Equal(t, filepath.Join(root, "sub"), s.Dir())
	assert.Equal(t, filepath.Join(root, "sub"), s.Status().WorkingDir)

	require.NoError(t, s.Chdir(".."))
	assert.Equal(t, root, s.Dir())

	assert.Error(t, s.Chdir("file"))
	assert.Error(t, s.Chdir("missing"))
	assert.Equal(t, root, s.Dir())
}

func TestConcurrentAccess(t *testing.T) {
	s := New("", nil, "/")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Setenv("K", "v")
				s.SetRunningPid(i + 1)
				s.Status()
				s.Env()
			}
		}(i)
	}
	wg.Wait()
	v, _ := s.Getenv("K")
	assert.Equal(t, "v", v)
}
