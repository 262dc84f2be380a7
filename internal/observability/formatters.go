// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/panopticon/internal/lead"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// statusSymbols mirrors the dashboard's traffic-light rendering.
var statusSymbols = map[lead.Status]string{
	lead.StatusStale:          "🔴",
	lead.StatusAtRisk:         "🟠",
	lead.StatusNeedsAttention: "🟡",
	lead.StatusHealthy:        "🟢",
}

// PrintSummary outputs the status tally for one refresh cycle.
func (p *Printer) PrintSummary(counts map[lead.Status]int) {
	var sb strings.Builder
	total := 0
	for _, status := range []lead.Status{lead.StatusStale, lead.StatusAtRisk, lead.StatusNeedsAttention, lead.StatusHealthy} {
		sb.WriteString(fmt.Sprintf("%s %-16s %d\n", statusSymbols[status], status, counts[status]))
		total += counts[status]
	}
	sb.WriteString(fmt.Sprintf("\nTotal leads: %d", total))

	p.printBox("FOLLOW-UP HEALTH SUMMARY", sb.String())
}

// PrintLeads outputs the classified lead list, already sorted worst first.
func (p *Printer) PrintLeads(classified []lead.Classified) {
	if len(classified) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(classified), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := classified[i]
		name := c.Lead.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", statusSymbols[c.Status], name))
		sb.WriteString(fmt.Sprintf("   %s", c.Reason))
		if c.DaysSince > 0 {
			sb.WriteString(fmt.Sprintf(" (%dd since appt)", c.DaysSince))
		}
		sb.WriteString("\n")
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(classified) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more leads", len(classified)-maxItemsToShow))
	}

	p.printBox("LEADS NEEDING ATTENTION", sb.String())
}

// PrintHistory outputs one lead's stage transitions, chronological.
func (p *Printer) PrintHistory(name string, transitions []lead.StageTransition) {
	if len(transitions) == 0 {
		return
	}

	var sb strings.Builder
	for _, t := range transitions {
		from := "(start)"
		if t.FromStage != nil {
			from = *t.FromStage
		}
		marker := ""
		if t.Synthetic {
			marker = " *"
		}
		sb.WriteString(fmt.Sprintf("%s  %s > %s%s\n",
			t.ChangedAt.UTC().Format("2006-01-02"), from, t.ToStage, marker))
	}
	sb.WriteString("\n* inferred locally, timestamp approximate")

	p.printBox(fmt.Sprintf("STAGE HISTORY: %s", name), sb.String())
}

// PrintPartial outputs the degradation warning when a cycle served stale or
// incomplete data.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPartial(warning string) {
	if warning == "" {
		return
	}
	fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "⚠ "+warning)
	fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
}
