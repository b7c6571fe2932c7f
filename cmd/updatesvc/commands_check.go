package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"updatesvc/internal/update"
)

func buildCheckCmd(a *app) *cobra.Command {
	var (
		current string
		notes   bool
		style   string
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the feed once and print the result",
		Long: `Check the release feed once and report whether a newer version exists.

The feed is the one named in the settings file, or --feed-url / feed.url when
the settings name none. A manual check runs even when automatic updates are
disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCheck(cmd, current, notes, style, list)
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "Version to compare against (default: this build)")
	cmd.Flags().BoolVar(&notes, "notes", false, "Render the release notes of an available update")
	cmd.Flags().StringVar(&style, "style", "dark", "Release notes style (dark, light, notty, plain)")
	cmd.Flags().BoolVar(&list, "list", false, "Treat the feed as a list of releases and pick the newest")
	cmd.Flags().Duration("timeout", update.DefaultTimeout, "HTTP timeout for the feed request")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, currentRaw string, notes bool, style string, list bool) error {
	if strings.TrimSpace(currentRaw) == "" {
		currentRaw = Version
	}
	if strings.EqualFold(strings.TrimSpace(currentRaw), "dev") {
		return fmt.Errorf("development build has no comparable version; pass --current")
	}
	current, err := update.Normalize(currentRaw)
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Shutdown() }()

	snap := store.Current()
	feed := effectiveFeed(snap, a.opts.FeedURL)
	out := cmd.OutOrStdout()
	if snap.AutomaticUpdatesDisabled {
		fmt.Fprintln(out, styleNotice.Render("Automatic updates are disabled in "+store.Path()))
	}

	checker := a.newChecker()
	var decision update.Decision
	if list {
		decision, err = checker.CheckLatestOf(cmd.Context(), current, feed)
	} else {
		decision, err = checker.CheckForUpdate(cmd.Context(), current, feed)
	}
	if err != nil {
		return err
	}

	notesStyle := ""
	if notes {
		notesStyle = style
	}
	renderDecision(out, decision, feed, notesStyle)
	return nil
}
