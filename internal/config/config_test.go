package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := LoadFrom(fs, "/etc/psh/config.yaml")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	def := DefaultConfig()
	if cfg.History.Limit != DefaultHistoryLimit {
		t.Errorf("history limit = %d, want %d", cfg.History.Limit, DefaultHistoryLimit)
	}
	if cfg.RcPath != def.RcPath || cfg.AliasPath != def.AliasPath {
		t.Errorf("rc/alias paths = %q, %q", cfg.RcPath, cfg.AliasPath)
	}
	if cfg.Journal.Enabled || cfg.Log.Level != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := def.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := `
rc_path: /opt/psh/rc
history:
  limit: 500
log:
  level: debug
journal:
  enabled: true
`
	if err := afero.WriteFile(fs, "/cfg.yaml", []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(fs, "/cfg.yaml")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.RcPath != "/opt/psh/rc" {
		t.Errorf("rc_path = %q", cfg.RcPath)
	}
	if cfg.History.Limit != 500 {
		t.Errorf("history.limit = %d", cfg.History.Limit)
	}
	if cfg.Journal.Path != DefaultConfig().Journal.Path {
		t.Errorf("journal.path should keep its default, got %q", cfg.Journal.Path)
	}
	if cfg.History.Path != DefaultConfig().History.Path {
		t.Errorf("history.path should keep its default, got %q", cfg.History.Path)
	}
	if cfg.Log.Level != "debug" || !cfg.Journal.Enabled {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/cfg.yaml", []byte("alias_path: ~/my/aliases\nplugin:\n  path: ~/p.wasm\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(fs, "/cfg.yaml")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if want := filepath.Join(home, "my", "aliases"); cfg.AliasPath != want {
		t.Errorf("alias_path = %q, want %q", cfg.AliasPath, want)
	}
	if want := filepath.Join(home, "p.wasm"); cfg.Plugin.Path != want {
		t.Errorf("plugin.path = %q, want %q", cfg.Plugin.Path, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"bad level":         {"log:\n  level: loud\n", "level"},
		"negative limit":    {"history:\n  limit: -1\n", "limit"},
		"journal sans path": {"journal:\n  enabled: true\n  path: \"\"\n", "path"},
		"not yaml":          {"history: [unterminated\n", "parse config"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/cfg.yaml", []byte(tc.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFrom(fs, "/cfg.yaml")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDisabledJournalNeedsNoPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/cfg.yaml", []byte("journal:\n  enabled: false\n  path: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(fs, "/cfg.yaml"); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
}
