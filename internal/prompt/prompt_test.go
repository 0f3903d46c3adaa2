package prompt

import (
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psh-project/psh/internal/logging"
	"github.com/psh-project/psh/internal/state"
)

// staticPlugin exports memory and get_prompt, which returns 16. The data
// segment at 16 holds the length-delimited message {1: "path"}.
var staticPlugin = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> i32
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// memory: one page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export "memory", "get_prompt"
	0x07, 0x17, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0a, 'g', 'e', 't', '_', 'p', 'r', 'o', 'm', 'p', 't', 0x00, 0x00,
	// code: i32.const 16
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x10, 0x0b,
	// data at 16
	0x0b, 0x0d, 0x01, 0x00, 0x41, 0x10, 0x0b, 0x07,
	0x06, 0x0a, 0x04, 'p', 'a', 't', 'h',
}

// envPlugin imports psh.getenv. get_prompt calls getenv(16) and returns 16;
// the data segment at 16 holds the key message {1: "SEG"}.
var envPlugin = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32) -> (), () -> i32
	0x01, 0x09, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x01, 0x7f,
	// import psh.getenv
	0x02, 0x0e, 0x01,
	0x03, 'p', 's', 'h',
	0x06, 'g', 'e', 't', 'e', 'n', 'v', 0x00, 0x00,
	// function
	0x03, 0x02, 0x01, 0x01,
	// memory: one page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export "memory", "get_prompt"
	0x07, 0x17, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0a, 'g', 'e', 't', '_', 'p', 'r', 'o', 'm', 'p', 't', 0x00, 0x01,
	// code: call getenv(16); i32.const 16
	0x0a, 0x0a, 0x01, 0x08, 0x00, 0x41, 0x10, 0x10, 0x00, 0x41, 0x10, 0x0b,
	// data at 16
	0x0b, 0x0c, 0x01, 0x00, 0x41, 0x10, 0x0b, 0x06,
	0x05, 0x0a, 0x03, 'S', 'E', 'G',
}

func noColor(t *testing.T) {
	t.Helper()
	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })
}

func TestPathSegment(t *testing.T) {
	noColor(t)
	tests := []struct {
		dir, home, want string
	}{
		{"/home/ann/src", "/home/ann", "~/src"},
		{"/home/ann", "/home/ann", "~/"},
		{"/home/ann/docs", "/home/ann/", "~/docs"},
		{"/home/annex", "/home/ann", "/home/annex"},
		{"/etc", "/home/ann", "/etc"},
		{"/etc", "", "/etc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PathSegment(tt.dir, tt.home), "dir=%q home=%q", tt.dir, tt.home)
	}
}

func TestFormat(t *testing.T) {
	noColor(t)
	assert.Equal(t, "> ~/src > ", Format("~/src", 0))
	assert.Equal(t, "> /etc >127> ", Format("/etc", 127))
}

func TestFormatColours(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = saved })

	assert.Equal(t, "> x >\x1b[37;41m1\x1b[0m> ", Format("x", 1))
	assert.Equal(t, "~/\x1b[33msrc\x1b[0m", PathSegment("/h/src", "/h"))
	assert.Equal(t, "\x1b[94m/etc\x1b[0m", PathSegment("/etc", "/h"))
}

func TestRenderWithoutPlugin(t *testing.T) {
	noColor(t)
	st := state.New("", []string{"HOME=/home/ann"}, "/home/ann/work")
	p := New(st, nil, logging.Discard())
	assert.Equal(t, "> ~/work > ", p.Render(context.Background(), 0))
	assert.Equal(t, "> ~/work >2> ", p.Render(context.Background(), 2))
}

func TestStaticPlugin(t *testing.T) {
	ctx := context.Background()
	plugin, err := LoadPlugin(ctx, staticPlugin, func(string) (string, bool) { return "", false }, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { plugin.Close(ctx) })

	seg, err := plugin.Segment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "path", seg)

	noColor(t)
	st := state.New("", nil, "/tmp")
	assert.Equal(t, "> path > ", New(st, plugin, logging.Discard()).Render(ctx, 0))
}

func TestPluginGetenv(t *testing.T) {
	ctx := context.Background()
	st := state.New("", []string{"SEG=from the shell"}, "/")
	plugin, err := LoadPlugin(ctx, envPlugin, st.Getenv, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { plugin.Close(ctx) })

	seg, err := plugin.Segment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from the shell", seg)
}

func TestPluginFallsBackOnFailure(t *testing.T) {
	noColor(t)
	ctx := context.Background()
	plugin, err := LoadPlugin(ctx, staticPlugin, func(string) (string, bool) { return "", false }, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, plugin.Close(ctx))

	st := state.New("", nil, "/srv")
	assert.Equal(t, "> /srv > ", New(st, plugin, logging.Discard()).Render(ctx, 0))
}

func TestLoadPluginErrors(t *testing.T) {
	ctx := context.Background()
	getenv := func(string) (string, bool) { return "", false }

	_, err := LoadPlugin(ctx, []byte("not wasm"), getenv, logging.Discard())
	assert.Error(t, err)

	// A valid module with no exports.
	_, err = LoadPlugin(ctx, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, getenv, logging.Discard())
	assert.ErrorContains(t, err, "get_prompt")

	_, err = LoadPluginFile(ctx, afero.NewMemMapFs(), "/missing.wasm", getenv, logging.Discard())
	assert.Error(t, err)
}

func TestLoadPluginFile(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/prompt.wasm", staticPlugin, 0o644))

	plugin, err := LoadPluginFile(ctx, fs, "/prompt.wasm", func(string) (string, bool) { return "", false }, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { plugin.Close(ctx) })
	seg, err := plugin.Segment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "path", seg)
}

func TestWireRoundTrip(t *testing.T) {
	for _, s := range []string{"", "HOME", "a longer value with spaces"} {
		buf, err := encodeString(s)
		require.NoError(t, err)
		got, err := decodeString(append(buf, 0xff, 0xff))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}
