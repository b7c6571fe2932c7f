package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"updatesvc/internal/service"
	"updatesvc/internal/update"
)

func buildRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check for updates periodically until interrupted",
		Long: `Watch the settings file and check the feed every --interval until
SIGINT or SIGTERM. Edits to the settings file take effect without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runService(cmd)
		},
	}
	cmd.Flags().Duration("interval", service.DefaultInterval, "Time between checks")
	cmd.Flags().Duration("timeout", update.DefaultTimeout, "HTTP timeout per check")
	cmd.Flags().Bool("check-on-start", true, "Check once immediately at startup")
	return cmd
}

func (a *app) runService(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Shutdown() }()

	out := cmd.OutOrStdout()
	svc := service.New(store, a.newChecker(),
		service.WithInterval(a.opts.CheckInterval),
		service.WithFeedURL(a.opts.FeedURL),
		service.WithCurrentVersion(Version),
		service.WithCheckOnStart(a.opts.CheckOnStart),
		service.WithLogger(a.logger),
		service.WithNotifier(func(d update.Decision) {
			fmt.Fprintf(out, "%s %s -> %s (%s)\n",
				styleAvailable.Render("Update available:"),
				d.Current, d.Release.Version, d.Release.DisplayName)
		}),
	)

	fmt.Fprintf(out, "Checking %s every %s (settings: %s)\n",
		svc.EffectiveFeedURL(), a.opts.CheckInterval.Round(time.Second), store.Path())
	if err := svc.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	svc.Stop()
	return nil
}
