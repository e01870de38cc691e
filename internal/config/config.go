// Package config loads the extension host configuration.
//
// Values are layered in this order, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A TOML file (LoadFile)
//  3. EXTKERNEL_* environment variables (ApplyEnv)
//
// Command-line flags are applied by the caller on top of the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the host configuration.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Poll    PollConfig    `toml:"poll"`
	Loop    LoopConfig    `toml:"loop"`
	Plugins PluginsConfig `toml:"plugins"`
	Metrics MetricsConfig `toml:"metrics"`
	App     AppConfig     `toml:"app"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// PollConfig configures the action update poller.
type PollConfig struct {
	Interval Duration `toml:"interval"`
}

// LoopConfig configures the dispatch loop.
type LoopConfig struct {
	QueueSize int `toml:"queue_size"`
}

// PluginsConfig configures plugin discovery and activation.
type PluginsConfig struct {
	Paths            []string                  `toml:"paths"`
	AutoActivate     bool                      `toml:"auto_activate"`
	Watch            bool                      `toml:"watch"`
	ExecutionTimeout Duration                  `toml:"execution_timeout"`
	Disabled         []string                  `toml:"disabled"`
	Settings         map[string]map[string]any `toml:"settings"`
}

// MetricsConfig toggles kernel metrics.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// AppConfig is the host state exposed to plugins through the app API.
type AppConfig struct {
	User        UserConfig        `toml:"user"`
	WorkspaceID string            `toml:"workspace_id"`
	Project     ProjectConfig     `toml:"project"`
	Endpoints   map[string]string `toml:"endpoints"`
}

// UserConfig describes the signed-in user.
type UserConfig struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// ProjectConfig describes the open project.
type ProjectConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Duration is a time.Duration written as a string ("250ms", "5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Poll: PollConfig{
			Interval: Duration{250 * time.Millisecond},
		},
		Loop: LoopConfig{
			QueueSize: 1024,
		},
		Plugins: PluginsConfig{
			Paths:            DefaultPluginPaths(),
			AutoActivate:     true,
			Watch:            false,
			ExecutionTimeout: Duration{5 * time.Second},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultPluginPaths returns the default plugin search paths.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 2)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "extkernel", "plugins"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".extkernel", "plugins"))
	}
	return paths
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "extkernel.toml"
	}
	return filepath.Join(dir, "extkernel", "config.toml")
}

// Load builds the configuration from defaults, the file at path and the
// environment. A missing file is not an error unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		err := cfg.LoadFile(path)
		switch {
		case errors.Is(err, ErrFileNotFound) && !required:
		case err != nil:
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the TOML file at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return c.decode(path, bytes.NewReader(data))
}

// Decode merges TOML read from r into c.
func (c *Config) Decode(r io.Reader) error {
	return c.decode("<reader>", r)
}

func (c *Config) decode(source string, r io.Reader) error {
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			perr.Message = serr.String()
		}
		return perr
	}
	return nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w).SetIndentTables(true)
	return enc.Encode(c)
}

// Validate checks the configuration for values the host cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &ValidationError{Path: "log.level", Message: "must be debug, info, warn or error", Value: c.Log.Level})
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, &ValidationError{Path: "log.format", Message: "must be text or json", Value: c.Log.Format})
	}
	if c.Poll.Interval.Duration < 0 {
		errs = append(errs, &ValidationError{Path: "poll.interval", Message: "must not be negative", Value: c.Poll.Interval})
	}
	if c.Loop.QueueSize <= 0 {
		errs = append(errs, &ValidationError{Path: "loop.queue_size", Message: "must be positive", Value: c.Loop.QueueSize})
	}
	if c.Plugins.ExecutionTimeout.Duration < 0 {
		errs = append(errs, &ValidationError{Path: "plugins.execution_timeout", Message: "must not be negative", Value: c.Plugins.ExecutionTimeout})
	}

	return errors.Join(errs...)
}
