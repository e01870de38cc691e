package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/extkernel/internal/app"
	"github.com/dshills/extkernel/internal/config"
	"github.com/dshills/extkernel/internal/plugin"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	plugins    []string
	logLevel   string
	logFormat  string
	watch      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "extkernel",
		Short: "Extension host kernel for Lua plugins",
		Long: `extkernel hosts Lua plugins against a shared kernel of actions,
typed events, parts and icons. Each plugin's registrations are owned by
its scope and reversed when the plugin is deactivated.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file (default "+config.DefaultPath()+")")
	pf.StringSliceVar(&flags.plugins, "plugins", nil, "Plugin search directories (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&flags.watch, "watch", false, "Reload plugins when their files change")

	root.AddCommand(
		newRunCmd(flags),
		newPluginsCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig layers command-line flags over the file and environment.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	path, required := flags.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}

	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("plugins") {
		cfg.Plugins.Paths = flags.plugins
	}
	if pf.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if pf.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if pf.Changed("watch") {
		cfg.Plugins.Watch = flags.watch
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load plugins and serve until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			host, err := app.New(app.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return host.Run(ctx)
		},
	}
}

func newPluginsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			loader := plugin.NewLoader(plugin.WithPaths(cfg.Plugins.Paths...))
			infos, err := loader.Discover()
			if err != nil {
				return err
			}
			printPlugins(cmd.OutOrStdout(), infos, cfg.Plugins.Disabled)
			return nil
		},
	})
	return cmd
}

func printPlugins(w io.Writer, infos []*plugin.PluginInfo, disabled []string) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "no plugins found")
		return
	}
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		off[name] = true
	}

	for _, info := range infos {
		status := "ok"
		switch {
		case info.Error != nil:
			status = "error: " + info.Error.Error()
		case off[info.Name]:
			status = "disabled"
		}
		ver := "-"
		if info.Manifest != nil {
			ver = info.Manifest.Version
		}
		fmt.Fprintf(w, "%-24s %-10s %-10s %s\n", info.Name, ver, status, info.Path)
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as TOML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd, flags)
				if err != nil {
					return err
				}
				return cfg.Encode(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "env",
			Short: "List recognised environment variables",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				vars := config.EnvVars()
				for _, name := range slices.Sorted(maps.Keys(vars)) {
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", name, vars[name])
				}
			},
		},
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "extkernel %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
		},
	}
}
