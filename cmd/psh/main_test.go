package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psh-project/psh/internal/journal"
)

func execute(t *testing.T, fs afero.Fs, args ...string) (int, string, error) {
	t.Helper()
	code := 0
	root := newRootCmd(fs, &code)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return code, out.String(), err
}

func TestJournalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := journal.Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record("make test", 2, nil, time.Second, "/src"))

	fs := afero.NewMemMapFs()
	cfg := fmt.Sprintf("journal:\n  enabled: true\n  path: %s\n", path)
	require.NoError(t, afero.WriteFile(fs, "/psh.yaml", []byte(cfg), 0o644))

	code, out, err := execute(t, fs, "--config", "/psh.yaml", "journal", "verify")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "journal integrity verified")

	code, out, err = execute(t, fs, "--config", "/psh.yaml", "journal", "tail", "5")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `"line": "make test"`)
}

func TestBadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/psh.yaml", []byte("log:\n  level: chatty\n"), 0o644))

	_, _, err := execute(t, fs, "--config", "/psh.yaml", "journal", "verify")
	assert.ErrorContains(t, err, "config")
}

func TestSetenvArity(t *testing.T) {
	_, _, err := execute(t, afero.NewMemMapFs(), "setenv", "ONLY")
	assert.Error(t, err)
}

func TestSetenvOutsideShell(t *testing.T) {
	t.Setenv("PSH_SERVICE_SOCK", "")
	code, out, err := execute(t, afero.NewMemMapFs(), "setenv", "K", "V")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Are you running from within psh?")
}

func TestJournalArgs(t *testing.T) {
	_, _, err := execute(t, afero.NewMemMapFs(), "journal")
	assert.Error(t, err)
}
