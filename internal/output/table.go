// Package output renders themeupdater results for the terminal.
//
// This package includes:
//   - Status, backup, history and changelog tables
//   - Operation result lines with warnings
//   - A spinner for long-running operations
//   - Markdown rendering of changelog sections
//
// Tables use plain columns; ANSI colors are only emitted when stdout is a
// terminal and NO_COLOR is not set.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/backup"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/changelog"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/engine"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderResult renders the outcome of an update, revert or backup
// operation, followed by any warnings.
func RenderResult(res engine.Result) string {
	var sb strings.Builder

	if res.Success {
		sb.WriteString(colorize(colorGreen, "✓ "+res.Message))
		if res.PreviousVersion != "" && res.Version != "" && res.PreviousVersion != res.Version {
			sb.WriteString(fmt.Sprintf(" (%s → %s)", res.PreviousVersion, res.Version))
		}
	} else {
		sb.WriteString(colorize(colorRed, "✗ "+res.Message))
		if res.Code != "" {
			sb.WriteString(colorize(colorGray, fmt.Sprintf(" [%s]", res.Code)))
		}
	}
	sb.WriteString("\n")

	for _, w := range res.Warnings {
		sb.WriteString(colorize(colorYellow, "  ⚠ "+w))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderStatus renders the local status view.
func RenderStatus(s *updater.Status, now time.Time) string {
	var sb strings.Builder

	row := func(label, value string) {
		sb.WriteString(fmt.Sprintf("%-14s %s\n", label+":", value))
	}

	row("Installation", s.InstallRoot)
	row("Repository", s.Repo+"@"+s.Branch)
	row("Installed", s.Current)

	switch {
	case s.Latest == "":
		row("Latest", colorize(colorGray, "unknown (run 'themeupdater check')"))
	case s.UpdateAvailable:
		row("Latest", colorize(colorYellow, s.Latest+" (update available)"))
	default:
		row("Latest", colorize(colorGreen, s.Latest+" (up to date)"))
	}

	if s.LastCheck != nil {
		row("Last check", formatRelativeTime(*s.LastCheck, now))
	} else {
		row("Last check", "never")
	}

	if s.Backup != nil {
		row("Backup", fmt.Sprintf("%s, %s (%s)", s.Backup.Version, s.Backup.DateLabel(), s.Backup.SizeLabel))
	} else {
		row("Backup", "none")
	}
	row("Safety copies", fmt.Sprintf("%d", s.SafetyCopies))

	if s.Busy {
		row("Lock", colorize(colorYellow, "an operation is running"))
	}

	if len(s.Components) > 0 {
		sb.WriteString("\nComponents in latest release:\n")
		sb.WriteString(RenderComponentTable(s.Components))
	}

	if s.CheckOverdue {
		sb.WriteString("\n")
		sb.WriteString(colorize(colorYellow, "Tip: no update check in the last 24 hours. Run 'themeupdater check'."))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderBackup renders the backup slot.
func RenderBackup(b *backup.Backup, now time.Time) string {
	if b == nil {
		return "No backup found.\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Version:  %s\n", b.Version))
	sb.WriteString(fmt.Sprintf("Created:  %s (%s)\n", b.DateLabel(), formatRelativeTime(b.CreatedAt, now)))
	sb.WriteString(fmt.Sprintf("Size:     %s\n", b.SizeLabel))
	sb.WriteString(fmt.Sprintf("Path:     %s\n", b.Path))
	if b.SHA256 != "" {
		sb.WriteString(fmt.Sprintf("SHA-256:  %s\n", b.SHA256))
	}
	return sb.String()
}

// RenderSafetyCopyTable renders pre-revert safety copies, newest first.
func RenderSafetyCopyTable(copies []*backup.SafetyCopy, now time.Time) string {
	if len(copies) == 0 {
		return "No safety copies found.\n"
	}

	sorted := make([]*backup.SafetyCopy, len(copies))
	copy(sorted, copies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-14s %-17s %-10s %s\n", "Version", "Created", "Size", "File"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, c := range sorted {
		sb.WriteString(fmt.Sprintf("%-14s %-17s %-10s %s\n",
			truncate(c.Version, 14),
			formatRelativeTime(c.CreatedAt, now),
			humanize.IBytes(uint64(c.Size)),
			truncate(baseName(c.Path), 36)))
	}
	return sb.String()
}

// RenderChangelogTable renders the changelog entry list. Security releases
// are marked.
func RenderChangelogTable(entries []changelog.Entry) string {
	if len(entries) == 0 || (len(entries) == 1 && entries[0].IsPlaceholder()) {
		return "No changelog entries found. Add CHANGELOG.md to the repository root.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-12s %-20s %s\n", "Version", "Date", "Notes"))
	sb.WriteString(strings.Repeat("─", 50))
	sb.WriteString("\n")

	for _, e := range entries {
		notes := ""
		if e.Highlight {
			notes = colorize(colorRed, e.Badge)
		}
		sb.WriteString(fmt.Sprintf("%-12s %-20s %s\n", truncate(e.Version, 12), e.Date, notes))
	}
	return sb.String()
}

// RenderComponentTable renders component versions sorted by name.
func RenderComponentTable(components map[string]string) string {
	if len(components) == 0 {
		return "No component versions available.\n"
	}

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("  %-20s %s\n", truncate(name, 20), components[name]))
	}
	return sb.String()
}

// RenderHistoryTable renders recorded operations in the given order.
func RenderHistoryTable(ops []*store.Operation, now time.Time) string {
	if len(ops) == 0 {
		return "No operations recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-8s %-17s %-9s %-21s %-8s %s\n",
		"Kind", "When", "Outcome", "Versions", "Took", "Message"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")

	for _, op := range ops {
		outcome := colorize(colorGreen, fmt.Sprintf("%-9s", "ok"))
		if !op.Success {
			outcome = colorize(colorRed, fmt.Sprintf("%-9s", "failed"))
		}
		sb.WriteString(fmt.Sprintf("%-8s %-17s %s %-21s %-8s %s\n",
			op.Kind,
			formatRelativeTime(op.StartedAt, now),
			outcome,
			truncate(formatVersions(op.FromVersion, op.ToVersion), 21),
			formatDuration(op.Duration()),
			truncate(op.Message, 40)))
	}
	return sb.String()
}

func formatVersions(from, to string) string {
	switch {
	case from == "" && to == "":
		return "—"
	case to == "" || from == to:
		return from
	case from == "":
		return to
	}
	return from + " → " + to
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if d := now.Sub(t); d >= 0 && d < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
