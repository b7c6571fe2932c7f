// Package main provides the updatesvc command.
//
// updatesvc watches a JSON settings file and periodically checks a release
// feed for a newer version of the running program.
//
// # Basic Usage
//
// Run the background checker:
//
//	updatesvc run
//
// Check once and show the release notes:
//
//	updatesvc check --notes
//
// Change the settings file (the running service picks the change up):
//
//	updatesvc settings set --url https://example.com/beta.json
//	updatesvc settings set --disable-updates
//
// # Environment Variables
//
//   - UPDATESVC_SETTINGS_PATH: settings file (default: <user config dir>/updatesvc/settings.json)
//   - UPDATESVC_FEED_URL: feed used when the settings name none
//   - UPDATESVC_FEED_TIMEOUT: HTTP timeout per check
//   - UPDATESVC_CHECK_INTERVAL: time between checks
//   - UPDATESVC_DEBUG: write ~/.updatesvc/debug.log
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"updatesvc/internal/config"
	"updatesvc/internal/debug"
	"updatesvc/internal/settings"
	"updatesvc/internal/update"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagBindings maps configuration keys to the flags that override them.
// Commands bind whichever of these they define.
var flagBindings = map[string]string{
	config.KeySettingsPath:  "settings",
	config.KeyFeedURL:       "feed-url",
	config.KeyFeedTimeout:   "timeout",
	config.KeyCheckInterval: "interval",
	config.KeyCheckOnStart:  "check-on-start",
	config.KeyDebug:         "debug",
}

// app carries state shared by every command for one invocation.
type app struct {
	configPath string
	opts       config.Options
	logger     *slog.Logger
}

func buildRootCmd() *cobra.Command {
	a := &app{logger: slog.New(slog.DiscardHandler)}

	rootCmd := &cobra.Command{
		Use:   "updatesvc",
		Short: "Check a release feed for updates",
		Long: `updatesvc checks a JSON release feed for a version newer than the
running one. The feed URL and an opt-out switch live in a JSON settings file
that is watched for changes while the service runs.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			debug.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Options file (default ~/.updatesvc/config.yaml)")
	flags.String("settings", "", "Settings file to watch")
	flags.String("feed-url", "", "Feed used when the settings name none")
	flags.Bool("debug", false, "Write a debug log to ~/.updatesvc/debug.log")

	rootCmd.AddCommand(
		buildRunCmd(a),
		buildCheckCmd(a),
		buildSettingsCmd(a),
		buildOptionsCmd(a),
		buildVersionCmd(),
	)
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	opts, err := config.Load(
		config.WithConfigFile(a.configPath),
		config.WithFlags(cmd.Flags(), boundFlags(cmd.Flags())),
	)
	if err != nil {
		return err
	}
	a.opts = opts

	if err := debug.Init(opts.Debug); err != nil {
		return fmt.Errorf("initialize debug log: %w", err)
	}
	a.logger = debug.Logger()
	a.logger.Debug("options resolved",
		"settings", opts.SettingsPath,
		"feed", opts.FeedURL,
		"interval", opts.CheckInterval.String(),
		"version", Version,
	)
	return nil
}

func boundFlags(fs *pflag.FlagSet) map[string]string {
	bindings := make(map[string]string, len(flagBindings))
	for key, name := range flagBindings {
		if fs.Lookup(name) != nil {
			bindings[key] = name
		}
	}
	return bindings
}

// openStore initializes the settings store at the configured path. Callers
// must Shutdown the returned store.
func (a *app) openStore() (*settings.Store, error) {
	store := settings.New(settings.WithLogger(a.logger))
	if err := store.Initialize(a.opts.SettingsPath); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) newChecker() *update.Checker {
	fetcher := update.NewFetcher(
		update.WithTimeout(a.opts.FeedTimeout),
		update.WithUserAgent(fmt.Sprintf("updatesvc/%s", Version)),
	)
	return update.NewChecker(
		update.WithFetcher(fetcher),
		update.WithFeedURL(a.opts.FeedURL),
	)
}

func buildOptionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Print the resolved service options as YAML",
		Long: `Print the options in effect after merging defaults, the options file,
UPDATESVC_* environment variables and flags. The output is a valid options file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := a.opts.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Version needs no options or settings.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func effectiveFeed(snap settings.Snapshot, fallback string) string {
	if url := strings.TrimSpace(snap.AutomaticUpdateURL); url != "" {
		return url
	}
	return fallback
}
