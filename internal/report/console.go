package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/routebook/internal/pipeline"
)

var (
	// titleStyle for bold stage headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	// dimStyle for muted labels
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for the per-stage summary
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)
)

// Console writes one summary box per stage, listing failed inputs.
func Console(w io.Writer, results []pipeline.BatchResult) {
	for _, r := range results {
		fmt.Fprintln(w, boxStyle.Render(stageSummary(r)))
	}
}

func stageSummary(r pipeline.BatchResult) string {
	var status string
	switch {
	case r.Err != "":
		status = errorStyle.Render("STOPPED")
	case r.Failed > 0:
		status = warnStyle.Render("PARTIAL")
	default:
		status = successStyle.Render("OK")
	}

	lines := []string{
		titleStyle.Render(strings.ToUpper(string(r.Stage))) + "  " + status,
		fmt.Sprintf("%s %d  %s %d  %s %d",
			dimStyle.Render("Done:"), r.Succeeded,
			dimStyle.Render("Skipped:"), r.Skipped,
			dimStyle.Render("Failed:"), r.Failed,
		),
	}
	if r.Err != "" {
		lines = append(lines, errorStyle.Render(r.Err))
	}
	for _, f := range r.Files {
		if f.Status == pipeline.FileFailed {
			lines = append(lines, fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), f.Name, dimStyle.Render(f.Detail)))
		}
	}
	for _, v := range r.Volumes {
		lines = append(lines, fmt.Sprintf("%s %s", successStyle.Render("✓"), v.Path))
	}
	return strings.Join(lines, "\n")
}
