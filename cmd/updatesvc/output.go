package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"updatesvc/internal/settings"
	"updatesvc/internal/update"
)

const notesWidth = 80

var (
	styleTitle     = lipgloss.NewStyle().Bold(true)
	styleAvailable = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleCurrent   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleNotice    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleLabel     = lipgloss.NewStyle().Faint(true).Width(12)
	styleNotes     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func writeField(w io.Writer, label, value string) {
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, styleLabel.Render(label), value))
}

func renderDecision(w io.Writer, d update.Decision, feed string, notesStyle string) {
	if !d.Available {
		fmt.Fprintln(w, styleCurrent.Render(fmt.Sprintf("%s is up to date", d.Current)))
		writeField(w, "feed", feed)
		return
	}

	rel := d.Release
	fmt.Fprintln(w, styleAvailable.Render("Update available"))
	writeField(w, "current", d.Current.String())
	writeField(w, "latest", rel.Version.String())
	if rel.DisplayName != "" {
		writeField(w, "name", rel.DisplayName)
	}
	if !rel.PublishedAt.IsZero() {
		writeField(w, "published", rel.PublishedAt.Format(time.DateOnly))
	}
	if rel.PageURL != "" {
		writeField(w, "page", rel.PageURL)
	}
	if rel.Prerelease {
		writeField(w, "channel", styleNotice.Render("prerelease"))
	}
	writeField(w, "feed", feed)

	if notesStyle != "" && strings.TrimSpace(rel.Notes) != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styleNotes.Render(buildNotesRenderer(notesStyle, notesWidthFor(w))(rel.Notes)))
	}
}

func renderSnapshot(w io.Writer, path string, snap settings.Snapshot, defaultFeed string) {
	fmt.Fprintln(w, styleTitle.Render("Update settings"))
	writeField(w, "file", path)
	updates := styleAvailable.Render("enabled")
	if snap.AutomaticUpdatesDisabled {
		updates = styleNotice.Render("disabled")
	}
	writeField(w, "updates", updates)
	feed := snap.AutomaticUpdateURL
	if strings.TrimSpace(feed) == "" {
		feed = defaultFeed + styleLabel.UnsetWidth().Render(" (default)")
	}
	writeField(w, "feed", feed)
}

// notesWidthFor wraps notes to the terminal when w is one narrower than
// notesWidth. The border and padding take four columns.
func notesWidthFor(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return notesWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width-4 >= notesWidth || width-4 < 20 {
		return notesWidth
	}
	return width - 4
}

func writeSnapshotJSON(cmd *cobra.Command, snap settings.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// buildNotesRenderer returns a markdown renderer for release notes. Unknown
// styles and renderer failures fall back to the raw text.
func buildNotesRenderer(format string, width int) func(string) string {
	fallback := func(input string) string {
		return strings.TrimSpace(input)
	}

	style := strings.ToLower(strings.TrimSpace(format))
	if style == "" || style == "rich" {
		style = "dark"
	}
	if style == "plain" {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}
