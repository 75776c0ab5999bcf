// Package config holds the tool configuration: where the kernel lives, the
// default input and output paths of the fuse pipeline, and the ambient
// history and logging settings. Configuration is a YAML file with
// environment overrides on top; flags are applied by the CLI layer and win
// over everything here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "occfuse.yaml"

// Environment override variables.
const (
	EnvDrawBinary = "OCCFUSE_DRAW"
	EnvHistoryDB  = "OCCFUSE_HISTORY_DB"
	EnvLogLevel   = "OCCFUSE_LOG_LEVEL"
)

// Config holds all occfuse configuration.
type Config struct {
	// Draw configures the kernel process.
	Draw DrawConfig `yaml:"draw"`

	// Inputs are the default STEP files of the fuse pipeline.
	Inputs InputsConfig `yaml:"inputs"`

	// Output configures where result files land.
	Output OutputConfig `yaml:"output"`

	// Run holds per-run pipeline defaults.
	Run RunConfig `yaml:"run"`

	// History configures the run record store.
	History HistoryConfig `yaml:"history"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// DrawConfig configures the external kernel process.
type DrawConfig struct {
	// Binary is the kernel executable. Empty means PATH discovery of the
	// conventional names.
	Binary string `yaml:"binary"`

	// ExtraArgs are prepended to the kernel command line.
	ExtraArgs []string `yaml:"extra_args"`

	// Timeout bounds one kernel session (Go duration string).
	Timeout string `yaml:"timeout"`

	// AllowedEnv lists environment variables passed through to the kernel.
	AllowedEnv []string `yaml:"allowed_env"`
}

// InputsConfig names the default pipeline inputs.
type InputsConfig struct {
	// Volume is the solid operand of the fuse.
	Volume string `yaml:"volume"`

	// Surface is the sheet operand of the fuse.
	Surface string `yaml:"surface"`
}

// OutputConfig configures result placement.
type OutputConfig struct {
	// Dir is the directory for exported BREP files.
	Dir string `yaml:"dir"`
}

// RunConfig holds pipeline defaults.
type RunConfig struct {
	// Parallel selects the kernel's parallel code path.
	Parallel bool `yaml:"parallel"`

	// Stats requests a subshape count of the result.
	Stats bool `yaml:"stats"`

	// Check requests a validity analysis of the result.
	Check bool `yaml:"check"`
}

// HistoryConfig configures the run record store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the default configuration. Input names follow the
// dental workflow this tool grew out of: last_diff.step carries the solid,
// last_dura.step the surface sheet.
func DefaultConfig() *Config {
	return &Config{
		Draw: DrawConfig{
			Timeout: "30m",
			AllowedEnv: []string{
				"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR",
				"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH",
				"CASROOT", "DRAWHOME", "DRAWDEFAULT", "CSF_OCCTResourcePath",
			},
		},
		Inputs: InputsConfig{
			Volume:  "last_diff.step",
			Surface: "last_dura.step",
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Run: RunConfig{
			Parallel: true,
			Stats:    true,
			Check:    false,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".occfuse", "history.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults apply. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides on top of file
// values.
func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv(EnvDrawBinary); bin != "" {
		c.Draw.Binary = bin
	}
	if path := os.Getenv(EnvHistoryDB); path != "" {
		c.History.Path = path
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// DrawTimeout returns the kernel session timeout as a duration.
func (c *Config) DrawTimeout() time.Duration {
	d, err := time.ParseDuration(c.Draw.Timeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// ValidLogLevels lists accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// ValidLogFormats lists accepted logging formats.
var ValidLogFormats = []string{"console", "json"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Draw.Timeout != "" {
		if _, err := time.ParseDuration(c.Draw.Timeout); err != nil {
			return fmt.Errorf("invalid draw.timeout %q: %w", c.Draw.Timeout, err)
		}
	}
	if c.Inputs.Volume == "" {
		return fmt.Errorf("inputs.volume must not be empty")
	}
	if c.Inputs.Surface == "" {
		return fmt.Errorf("inputs.surface must not be empty")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path must not be empty while history is enabled")
	}
	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level %q (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid logging.format %q (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
