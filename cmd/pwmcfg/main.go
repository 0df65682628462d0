// Package main provides the entry point for the pwmcfg CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dongho-jung/pwmcfg/internal/app"
	"github.com/dongho-jung/pwmcfg/internal/config"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/tui"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
	// Commit is the git commit hash, set at build time via ldflags
	Commit = "unknown"
)

func main() {
	tui.Version = Version
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	configPath  string
	debug       bool
	showVersion bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "pwmcfg",
		Short: "pwmcfg - configuration console for a password management server",
		Long: `pwmcfg edits the configuration of a password management server.
Without arguments it opens the interactive console; the subcommands read and
change single settings from scripts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				printVersion(cmd)
				return nil
			}
			return runConsole(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/pwmcfg/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "write debug logs")
	root.Flags().BoolVarP(&opts.showVersion, "version", "v", false, "Print version information")

	root.AddCommand(
		newGetCmd(opts),
		newSetCmd(opts),
		newResetCmd(opts),
		newExecCmd(opts),
		newSearchCmd(opts),
		newTreeCmd(opts),
		newServeDemoCmd(),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd)
		},
	}
}

func printVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "pwmcfg %s (%s)\n", Version, Commit)
}

func (o *options) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultPath()
}

// loadApp creates the app and installs the file logger. The returned cleanup
// closes both.
func loadApp(cmd *cobra.Command, opts *options) (*app.App, func(), error) {
	path, err := opts.path()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(path)
	if err != nil {
		return nil, nil, err
	}
	if opts.debug {
		a.Debug = true
	}
	if err := a.Initialize(); err != nil {
		return nil, nil, err
	}

	cleanup := func() { _ = a.Close() }
	logger, err := logging.New(a.GetLogPath(), a.Debug)
	if err != nil {
		logging.SetGlobal(logging.NewStdout(a.Debug))
		logging.Warn("%v", err)
		return a, cleanup, nil
	}
	logger.SetScript(cmd.Name())
	logging.SetGlobal(logger)
	return a, func() {
		_ = a.Close()
		_ = logger.Close()
	}, nil
}

// connect loads the app and bootstraps it against the configured server.
func connect(cmd *cobra.Command, opts *options) (*app.App, func(), error) {
	a, cleanup, err := loadApp(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Connect(); err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := a.Bootstrap(cmd.Context()); err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

// runConsole opens the interactive console.
func runConsole(cmd *cobra.Command, opts *options) error {
	a, cleanup, err := loadApp(cmd, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.OpenPrefs(ctx); err != nil {
		logging.Warn("preferences unavailable: %v", err)
	}
	if err := a.Connect(); err != nil {
		return err
	}

	colors := tui.NewThemeColors(tui.DetectDarkMode(a.Config.Editor.Theme))
	_, err = tui.RunSpinner("Connecting to "+a.Config.EndpointURL(), colors, func() (string, error) {
		if err := a.Bootstrap(ctx); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d settings", a.Session.Catalog().Len()), nil
	})
	if err != nil {
		return err
	}
	return tui.Run(a)
}
