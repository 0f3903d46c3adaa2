package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	hostModule    = "psh"
	getenvFunc    = "getenv"
	getPromptFunc = "get_prompt"
)

// Getenv looks up a variable in the shell's environment.
type Getenv func(key string) (string, bool)

// Plugin is a sandboxed wasm module that renders the prompt segment.
//
// The module exports get_prompt() -> i32, returning the offset in its memory
// of a length-delimited message whose field 1 is the segment. It may import
// psh.getenv(ptr i32): the host reads a length-delimited key message at ptr
// and overwrites it with the value message.
type Plugin struct {
	mu        sync.Mutex
	runtime   wazero.Runtime
	module    api.Module
	getPrompt api.Function
}

// LoadPluginFile reads and instantiates the plugin at path on fs.
func LoadPluginFile(ctx context.Context, fs afero.Fs, path string, getenv Getenv, logger *slog.Logger) (*Plugin, error) {
	wasm, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read plugin: %w", err)
	}
	return LoadPlugin(ctx, wasm, getenv, logger)
}

// LoadPlugin compiles and instantiates a prompt plugin.
func LoadPlugin(ctx context.Context, wasm []byte, getenv Getenv, logger *slog.Logger) (*Plugin, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	p, err := instantiate(ctx, rt, wasm, getenv, logger)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return p, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, wasm []byte, getenv Getenv, logger *slog.Logger) (*Plugin, error) {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	_, err := rt.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr uint32) {
			if err := hostGetenv(m.Memory(), ptr, getenv); err != nil {
				logger.Warn("plugin getenv", "ptr", ptr, "err", err)
			}
		}).
		Export(getenvFunc).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	cfg := wazero.NewModuleConfig().WithStartFunctions("_initialize")
	mod, err := rt.InstantiateWithConfig(ctx, wasm, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate plugin: %w", err)
	}
	fn := mod.ExportedFunction(getPromptFunc)
	if fn == nil {
		return nil, fmt.Errorf("plugin does not export %s", getPromptFunc)
	}
	if mod.Memory() == nil {
		return nil, errors.New("plugin does not export memory")
	}
	return &Plugin{runtime: rt, module: mod, getPrompt: fn}, nil
}

func hostGetenv(mem api.Memory, ptr uint32, getenv Getenv) error {
	if mem == nil || ptr >= mem.Size() {
		return fmt.Errorf("pointer %d outside memory", ptr)
	}
	buf, _ := mem.Read(ptr, mem.Size()-ptr)
	key, err := decodeString(buf)
	if err != nil {
		return err
	}
	val, _ := getenv(key)
	out, err := encodeString(val)
	if err != nil {
		return err
	}
	if !mem.Write(ptr, out) {
		return fmt.Errorf("value for %s does not fit in memory", key)
	}
	return nil
}

// Segment calls the plugin's get_prompt and decodes the result.
func (p *Plugin) Segment(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	results, err := p.getPrompt.Call(ctx)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", getPromptFunc, err)
	}
	if len(results) != 1 {
		return "", fmt.Errorf("%s returned %d values", getPromptFunc, len(results))
	}
	mem := p.module.Memory()
	ptr := api.DecodeU32(results[0])
	if ptr >= mem.Size() {
		return "", fmt.Errorf("%s returned pointer %d outside memory", getPromptFunc, ptr)
	}
	buf, _ := mem.Read(ptr, mem.Size()-ptr)
	return decodeString(buf)
}

// Close releases the plugin's runtime.
func (p *Plugin) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}
