// Package config loads the shell's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/psh-project/psh/internal/ipc"
)

// Config holds the global psh configuration.
type Config struct {
	RcPath     string        `yaml:"rc_path"`
	AliasPath  string        `yaml:"alias_path"`
	RuntimeDir string        `yaml:"runtime_dir" validate:"required"`
	History    HistoryConfig `yaml:"history"`
	Plugin     PluginConfig  `yaml:"plugin"`
	Journal    JournalConfig `yaml:"journal"`
	Log        LogConfig     `yaml:"log"`
}

// HistoryConfig controls the line editor history.
type HistoryConfig struct {
	Path  string `yaml:"path" validate:"required"`
	Limit int    `yaml:"limit" validate:"gte=0"`
}

// PluginConfig locates the optional wasm prompt plugin. A missing file means
// the built-in prompt is used.
type PluginConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig controls the executed-line journal. Lines are stored
// verbatim, values passed to set included, so it is off unless enabled.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// LogConfig controls the diagnostic log. An empty path disables it.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// DefaultHistoryLimit is the number of lines kept in the history file.
const DefaultHistoryLimit = 100

// Dir returns the directory holding config.yaml, pshrc and aliases.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "psh")
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dir := Dir()
	return &Config{
		RcPath:     filepath.Join(dir, "pshrc"),
		AliasPath:  filepath.Join(dir, "aliases"),
		RuntimeDir: ipc.RuntimeDir(),
		History: HistoryConfig{
			Path:  filepath.Join(home, ".psh_history"),
			Limit: DefaultHistoryLimit,
		},
		Plugin: PluginConfig{
			Path: filepath.Join(dir, "prompt.wasm"),
		},
		Journal: JournalConfig{
			Path: filepath.Join(home, ".local", "share", "psh", "journal.jsonl"),
		},
		Log: LogConfig{
			Path:  filepath.Join(home, ".local", "state", "psh", "psh.log"),
			Level: "info",
		},
	}
}

// Load reads the config from the standard location on fs.
// If the file doesn't exist, returns the default config.
func Load(fs afero.Fs) (*Config, error) {
	return LoadFrom(fs, ConfigPath())
}

// LoadFrom reads the config from the given path on fs, layering it over the
// defaults.
func LoadFrom(fs afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	home, _ := os.UserHomeDir()
	for _, p := range []*string{
		&cfg.RcPath, &cfg.AliasPath, &cfg.RuntimeDir, &cfg.History.Path,
		&cfg.Plugin.Path, &cfg.Journal.Path, &cfg.Log.Path,
	} {
		*p = expandHome(*p, home)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for basic semantic errors.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})
	return validate.Struct(c)
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
