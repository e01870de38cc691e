package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXTKERNEL_"

var errNotBool = errors.New("not a boolean")

// envBinding applies one environment variable to the configuration.
type envBinding struct {
	name  string
	path  string
	apply func(c *Config, value string) error
}

// envBindings maps EXTKERNEL_* variables to settings.
var envBindings = []envBinding{
	{"EXTKERNEL_LOG_LEVEL", "log.level", func(c *Config, v string) error {
		c.Log.Level = strings.ToLower(v)
		return nil
	}},
	{"EXTKERNEL_LOG_FORMAT", "log.format", func(c *Config, v string) error {
		c.Log.Format = strings.ToLower(v)
		return nil
	}},
	{"EXTKERNEL_POLL_INTERVAL", "poll.interval", func(c *Config, v string) error {
		return setDuration(&c.Poll.Interval, v)
	}},
	{"EXTKERNEL_LOOP_QUEUE_SIZE", "loop.queue_size", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Loop.QueueSize = n
		return err
	}},
	{"EXTKERNEL_PLUGIN_PATHS", "plugins.paths", func(c *Config, v string) error {
		c.Plugins.Paths = splitList(v, string(filepath.ListSeparator))
		return nil
	}},
	{"EXTKERNEL_PLUGINS_AUTO_ACTIVATE", "plugins.auto_activate", func(c *Config, v string) error {
		return setBool(&c.Plugins.AutoActivate, v)
	}},
	{"EXTKERNEL_PLUGINS_WATCH", "plugins.watch", func(c *Config, v string) error {
		return setBool(&c.Plugins.Watch, v)
	}},
	{"EXTKERNEL_PLUGINS_EXECUTION_TIMEOUT", "plugins.execution_timeout", func(c *Config, v string) error {
		return setDuration(&c.Plugins.ExecutionTimeout, v)
	}},
	{"EXTKERNEL_PLUGINS_DISABLED", "plugins.disabled", func(c *Config, v string) error {
		c.Plugins.Disabled = splitList(v, ",")
		return nil
	}},
	{"EXTKERNEL_METRICS_ENABLED", "metrics.enabled", func(c *Config, v string) error {
		return setBool(&c.Metrics.Enabled, v)
	}},
	{"EXTKERNEL_USER_ID", "app.user.id", func(c *Config, v string) error {
		c.App.User.ID = v
		return nil
	}},
	{"EXTKERNEL_USER_NAME", "app.user.name", func(c *Config, v string) error {
		c.App.User.Name = v
		return nil
	}},
	{"EXTKERNEL_USER_EMAIL", "app.user.email", func(c *Config, v string) error {
		c.App.User.Email = v
		return nil
	}},
	{"EXTKERNEL_WORKSPACE_ID", "app.workspace_id", func(c *Config, v string) error {
		c.App.WorkspaceID = v
		return nil
	}},
}

// EnvVars returns the recognised environment variables and the settings
// they override.
func EnvVars() map[string]string {
	vars := make(map[string]string, len(envBindings))
	for _, b := range envBindings {
		vars[b.name] = b.path
	}
	return vars
}

// ApplyEnv overrides settings from EXTKERNEL_* environment variables.
// Note: Empty string values are treated as valid values, not as unset.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s=%q (%s): %v", ErrInvalidEnv, b.name, v, b.path, err)
		}
	}
	return nil
}

// setBool accepts true/false, yes/no, on/off and 1/0.
func setBool(dst *bool, s string) error {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		*dst = true
	case "false", "no", "off", "0":
		*dst = false
	default:
		return errNotBool
	}
	return nil
}

func setDuration(dst *Duration, s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	dst.Duration = d
	return nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
