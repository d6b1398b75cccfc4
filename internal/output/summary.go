// Package output renders the human-facing summary of a run. Diagnostic
// logging goes to the structured logger; this package only writes the final
// per-branch outcome lines to stdout.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"cascade.dev/cascade/internal/stack"
)

var (
	updatedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4dca7d"))
	skippedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f5c800"))
	conflictedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f46251"))
)

// Summary writes run results in a stable per-branch format.
type Summary struct {
	writer io.Writer
	color  bool
}

// NewSummary creates a Summary writing to stdout, with color when stdout is
// a terminal.
func NewSummary() *Summary {
	return &Summary{
		writer: os.Stdout,
		color:  isatty.IsTerminal(os.Stdout.Fd()),
	}
}

// NewSummaryWriter creates a Summary writing plain text to w.
func NewSummaryWriter(w io.Writer) *Summary {
	return &Summary{writer: w}
}

// Print writes one line per touched branch plus a closing push line.
func (s *Summary) Print(report *stack.RunReport, mergedBranch string, dryRun bool) {
	for _, branch := range report.Updated {
		s.line(updatedStyle, "updated", branch)
	}
	for _, branch := range report.Skipped {
		s.line(skippedStyle, "skipped", branch)
	}
	for _, branch := range report.Conflicted {
		s.line(conflictedStyle, "conflict", branch)
	}

	if dryRun {
		fmt.Fprintf(s.writer, "dry run: would push %d branch(es) and delete %s\n",
			len(report.Pushed), mergedBranch)
		return
	}
	fmt.Fprintf(s.writer, "pushed %d branch(es), deleted %s\n",
		len(report.Pushed), mergedBranch)
}

func (s *Summary) line(style lipgloss.Style, outcome, branch string) {
	padded := fmt.Sprintf("%-8s", outcome)
	if s.color {
		padded = style.Render(padded)
	}
	fmt.Fprintf(s.writer, "%s  %s\n", padded, branch)
}
