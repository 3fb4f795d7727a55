// Package output provides terminal output utilities for pkgup.
//
// This package includes:
//   - Table rendering for inventories, update decisions, outcomes, and run history
//   - Progress bars for long-running operations
//   - Spinners for indeterminate operations
//
// All table rendering functions use ASCII characters and ANSI color codes for terminal output.
// Progress indicators are thread-safe and can be used from multiple goroutines.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/pkgup/internal/pipeline"
	"github.com/blackwell-systems/pkgup/internal/resolver"
	"github.com/blackwell-systems/pkgup/internal/scanner"
	"github.com/blackwell-systems/pkgup/internal/store"
)

// ANSI color codes for status display
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

// RenderInventoryTable renders the scanned inventory, one row per package.
func RenderInventoryTable(inv *scanner.Inventory) string {
	if inv == nil || inv.Len() == 0 {
		return "No packages found.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-12s %-10s %s\n",
		"Package", "Highest", "Locations", "Versions"))
	sb.WriteString(strings.Repeat("─", 76))
	sb.WriteString("\n")

	for _, pkg := range inv.Packages {
		highest := "?"
		if v, ok := pkg.Highest(); ok {
			highest = v.String()
		}

		versions := make([]string, 0, len(pkg.Locations))
		seen := map[string]bool{}
		for _, loc := range pkg.Locations {
			if !seen[loc.RawVersion] {
				seen[loc.RawVersion] = true
				versions = append(versions, loc.RawVersion)
			}
		}

		sb.WriteString(fmt.Sprintf("%-24s %-12s %-10d %s\n",
			truncate(pkg.Name, 24),
			truncate(highest, 12),
			len(pkg.BasePaths()),
			truncate(strings.Join(versions, ", "), 28)))
	}

	return sb.String()
}

// RenderDecisionTable renders resolved update decisions. Decisions arrive
// sorted by package name from the resolver.
func RenderDecisionTable(decisions []resolver.Decision) string {
	if len(decisions) == 0 {
		return "Everything is up to date.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-12s %-12s %s\n",
		"Package", "Target", "Repository", "Outdated Locations"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, d := range decisions {
		sb.WriteString(fmt.Sprintf("%-24s %-12s %-12s %s\n",
			truncate(d.Name, 24),
			truncate(d.Target.String(), 12),
			truncate(d.Repository, 12),
			truncate(strings.Join(d.OutdatedLocations, ", "), 34)))
	}

	return sb.String()
}

// RenderOutcomeTable renders per-package results of a pipeline run.
func RenderOutcomeTable(outcomes []pipeline.Outcome) string {
	if len(outcomes) == 0 {
		return "Nothing was processed.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-12s %-8s %-8s %-8s %s\n",
		"Package", "Target", "Updated", "Failed", "Cleaned", "Status"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf("%-24s %-12s %-8d %-8d %-8d %s\n",
			truncate(o.Name, 24),
			truncate(o.Target, 12),
			len(o.UpdatedPaths),
			len(o.FailedPaths),
			len(o.CleanedPaths),
			formatStatus(o)))
	}

	return sb.String()
}

// RenderSummary renders a one-line summary for a batch of outcomes.
// Format: "Updated: 3 · Failed: 1 · Skipped: 2"
func RenderSummary(outcomes []pipeline.Outcome) string {
	var updated, failed, skipped int
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.OverallSuccess:
			updated++
		default:
			failed++
		}
	}

	parts := []string{
		colorize(colorGreen, fmt.Sprintf("Updated: %d", updated)),
	}
	if failed > 0 {
		parts = append(parts, colorize(colorRed, fmt.Sprintf("Failed: %d", failed)))
	} else {
		parts = append(parts, fmt.Sprintf("Failed: %d", failed))
	}
	parts = append(parts, colorize(colorGray, fmt.Sprintf("Skipped: %d", skipped)))

	return strings.Join(parts, " · ")
}

// RenderRunTable renders recorded run history, most recent first.
func RenderRunTable(runs []store.Run) string {
	if len(runs) == 0 {
		return "No recorded runs.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-5s %-17s %-10s %-8s %-8s %s\n",
		"ID", "Started", "Processed", "Updated", "Failed", "Skipped"))
	sb.WriteString(strings.Repeat("─", 64))
	sb.WriteString("\n")

	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("%-5d %-17s %-10d %-8d %-8d %d\n",
			r.ID,
			formatRelativeTime(r.StartedAt),
			r.Processed,
			r.Updated,
			r.Failed,
			r.Skipped))
	}

	return sb.String()
}

// formatStatus returns a colored status label for an outcome.
func formatStatus(o pipeline.Outcome) string {
	switch {
	case o.Skipped:
		label := "skipped"
		if o.SkipReason != "" {
			label = "skipped: " + o.SkipReason
		}
		return colorize(colorGray, label)
	case o.OverallSuccess:
		return colorize(colorGreen, "✓ ok")
	case len(o.UpdatedPaths) > 0:
		return colorize(colorYellow, "~ partial")
	default:
		return colorize(colorRed, "✗ failed")
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
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
