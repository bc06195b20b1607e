// Package report renders run outcomes for people: a Markdown summary, the
// same summary as an HTML page, a YAML manifest of the written volumes and a
// terminal box for the CLI.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/routebook/internal/pipeline"
)

// Run is the input to every renderer.
type Run struct {
	ID       string
	Stage    pipeline.Stage
	Status   string
	Started  time.Time
	Finished time.Time
	Results  []pipeline.BatchResult
	Errors   []string
}

// FromSnapshot builds a Run from a server job.
func FromSnapshot(s pipeline.JobSnapshot) Run {
	return Run{
		ID:       s.ID,
		Stage:    s.Stage,
		Status:   string(s.Status),
		Started:  s.CreatedAt,
		Finished: s.UpdatedAt,
		Results:  s.Results,
		Errors:   s.Progress.Errors,
	}
}

// Totals sums the per-stage counts.
func (r Run) Totals() (ok, skipped, failed int) {
	for _, res := range r.Results {
		ok += res.Succeeded
		skipped += res.Skipped
		failed += res.Failed
	}
	return ok, skipped, failed
}

// Markdown renders the run as a Markdown document with one table per stage.
func Markdown(r Run) []byte {
	var b bytes.Buffer
	title := "Run report"
	if r.ID != "" {
		title += " " + r.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	ok, skipped, failed := r.Totals()
	fmt.Fprintf(&b, "- Stage: %s\n", r.Stage)
	if r.Status != "" {
		fmt.Fprintf(&b, "- Status: %s\n", r.Status)
	}
	if !r.Started.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", r.Started.Format(time.RFC3339))
	}
	if !r.Finished.IsZero() && r.Finished.After(r.Started) {
		fmt.Fprintf(&b, "- Duration: %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "- Files: %d ok, %d skipped, %d failed\n", ok, skipped, failed)

	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n## %s\n\n", res.Stage)
		if res.Err != "" {
			fmt.Fprintf(&b, "Stage stopped: %s\n\n", escapeCell(res.Err))
		}
		if len(res.Files) == 0 {
			b.WriteString("No input files.\n")
			continue
		}
		b.WriteString("| File | Status | Output | Detail |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, f := range res.Files {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				escapeCell(f.Name), f.Status, escapeCell(f.Output), escapeCell(f.Detail))
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.Bytes()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
