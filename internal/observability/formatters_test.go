package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/panopticon/internal/lead"
)

func TestPrintSummary(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	p.PrintSummary(map[lead.Status]int{
		lead.StatusStale:   2,
		lead.StatusHealthy: 10,
	})

	out := sb.String()
	assert.Contains(t, out, "FOLLOW-UP HEALTH SUMMARY")
	assert.Contains(t, out, "stale")
	assert.Contains(t, out, "Total leads: 12")
}

func TestPrintLeads_TruncatesLongLists(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	classified := make([]lead.Classified, 15)
	for i := range classified {
		classified[i] = lead.Classified{
			Lead:   lead.Lead{Name: "Lead"},
			Status: lead.StatusAtRisk,
			Reason: "Appointment has never been acknowledged",
		}
	}
	p.PrintLeads(classified)

	assert.Contains(t, sb.String(), "... and 5 more leads")
}

func TestPrintHistory_MarksSynthetic(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	from := "A"
	p.PrintHistory("Hardee's #1523", []lead.StageTransition{
		{ToStage: "A", ChangedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{FromStage: &from, ToStage: "B", ChangedAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Synthetic: true},
	})

	out := sb.String()
	assert.Contains(t, out, "2026-03-01  (start) > A")
	assert.Contains(t, out, "B *")
}

func TestPrintPartial(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb)

	p.PrintPartial("")
	assert.Empty(t, sb.String())

	p.PrintPartial("Some data may be missing.")
	assert.Contains(t, sb.String(), "Some data may be missing.")
}
