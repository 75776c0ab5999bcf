package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Inputs.Volume != "last_diff.step" {
		t.Errorf("expected volume=last_diff.step, got %s", cfg.Inputs.Volume)
	}
	if cfg.Inputs.Surface != "last_dura.step" {
		t.Errorf("expected surface=last_dura.step, got %s", cfg.Inputs.Surface)
	}
	if !cfg.Run.Parallel {
		t.Error("expected parallel run by default")
	}
	if cfg.DrawTimeout() != 30*time.Minute {
		t.Errorf("expected 30m draw timeout, got %s", cfg.DrawTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv(EnvDrawBinary, "")
	t.Setenv(EnvHistoryDB, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), "occfuse.yaml")

	cfg := DefaultConfig()
	cfg.Draw.Binary = "/opt/occt/bin/DRAWEXE"
	cfg.Inputs.Volume = "crown.step"
	cfg.Run.Check = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Draw.Binary != "/opt/occt/bin/DRAWEXE" {
		t.Errorf("expected binary roundtrip, got %s", loaded.Draw.Binary)
	}
	if loaded.Inputs.Volume != "crown.step" {
		t.Errorf("expected volume=crown.step, got %s", loaded.Inputs.Volume)
	}
	if !loaded.Run.Check {
		t.Error("expected check=true after roundtrip")
	}
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvDrawBinary, "")
	t.Setenv(EnvHistoryDB, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load of a missing file must not fail: %v", err)
	}
	if cfg.Inputs.Volume != "last_diff.step" {
		t.Errorf("missing file should give defaults, got volume=%s", cfg.Inputs.Volume)
	}
}

func TestConfig_LoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvDrawBinary, "")
	t.Setenv(EnvHistoryDB, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), "occfuse.yaml")
	partial := "run:\n  parallel: false\n"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("writing partial config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Run.Parallel {
		t.Error("file value parallel=false lost")
	}
	if cfg.Inputs.Surface != "last_dura.step" {
		t.Errorf("unset keys must keep defaults, got surface=%s", cfg.Inputs.Surface)
	}
}

func TestConfig_LoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occfuse.yaml")
	if err := os.WriteFile(path, []byte("{{not yaml"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDrawBinary, "/env/DRAWEXE")
	t.Setenv(EnvHistoryDB, "/env/history.db")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Draw.Binary != "/env/DRAWEXE" {
		t.Errorf("expected env binary override, got %s", cfg.Draw.Binary)
	}
	if cfg.History.Path != "/env/history.db" {
		t.Errorf("expected env history override, got %s", cfg.History.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env level override, got %s", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad timeout", func(c *Config) { c.Draw.Timeout = "a while" }, true},
		{"empty volume", func(c *Config) { c.Inputs.Volume = "" }, true},
		{"empty surface", func(c *Config) { c.Inputs.Surface = "" }, true},
		{"history without path", func(c *Config) { c.History.Path = "" }, true},
		{"history disabled without path", func(c *Config) { c.History.Enabled = false; c.History.Path = "" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"json format", func(c *Config) { c.Logging.Format = "json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfig_DrawTimeoutFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Draw.Timeout = "broken"
	if cfg.DrawTimeout() != 30*time.Minute {
		t.Errorf("broken timeout should fall back to 30m, got %s", cfg.DrawTimeout())
	}
}
