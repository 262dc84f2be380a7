// Package classify determines the follow-up health of leads. Classification
// is pure: given a lead, its stage history, its latest note, and the delivery
// record set, it produces a status and a human-readable reason with no side
// effects.
package classify

import (
	"fmt"
	"time"

	"github.com/jonathan/panopticon/internal/lead"
)

// Thresholds are the business-tunable classification constants. They are
// injected rather than hard-coded so operations can tune them per deployment.
type Thresholds struct {
	// StaleDays is the inactivity window before a lead is flagged stale.
	StaleDays int
	// LegacyStaleDays and LegacyAtRiskDays drive the single-pass variant
	// that only has the appointment date to work with.
	LegacyStaleDays  int
	LegacyAtRiskDays int
	// NameMatch and StrongNameMatch bound the delivery fuzzy-match bands.
	NameMatch       float64
	StrongNameMatch float64
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleDays:        14,
		LegacyStaleDays:  7,
		LegacyAtRiskDays: 5,
		NameMatch:        0.60,
		StrongNameMatch:  0.90,
	}
}

// Engine classifies leads against a fixed set of thresholds.
type Engine struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewEngine creates a classification engine.
func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t, now: time.Now}
}

// Classify evaluates the full rule set in strict priority order; the first
// matching rule wins.
func (e *Engine) Classify(l lead.Lead, history []lead.StageTransition, note lead.Note, deliveries []lead.Delivery) (lead.Status, string) {
	now := e.now().UTC()

	// Rule 1: terminal stages need no follow-up, ever.
	if lead.IsTerminalStage(l.CurrentStage) {
		return lead.StatusHealthy, fmt.Sprintf("Completed - %s", l.CurrentStage)
	}

	// Rule 2: a delivery on record means the lead reached its outcome even if
	// the stage field lags.
	if d, ok := e.MatchDelivery(l, deliveries); ok {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		return lead.StatusHealthy, fmt.Sprintf("Delivery on record - %s", name)
	}

	// Rule 3: a note newer than the appointment is documented follow-up.
	if note.Time != nil && (l.AppointmentDate == nil || note.Time.After(*l.AppointmentDate)) {
		return lead.StatusHealthy, fmt.Sprintf("Follow-up documented on %s", note.Time.UTC().Format("2006-01-02"))
	}

	// Rule 4: prolonged silence beats everything below, including leads that
	// technically acknowledged long ago.
	if activity := lastActivity(l, history, note); activity != nil {
		days := lead.DaysSince(*activity, now)
		if days >= e.thresholds.StaleDays {
			return lead.StatusStale, fmt.Sprintf("No activity for %d days", days)
		}
	}

	// Rule 5: acknowledged-but-undocumented vs never acknowledged.
	if hasProgressed(l, history) {
		return lead.StatusNeedsAttention, "Stage progressed but no follow-up documented since appointment"
	}
	return lead.StatusAtRisk, "Appointment has never been acknowledged"
}

// ClassifySimple is the single-pass variant used when history, notes and
// deliveries are not available (for example during a pre-fetch window). It
// applies day-count thresholds directly against the appointment date.
func (e *Engine) ClassifySimple(l lead.Lead) (lead.Status, string) {
	if l.AppointmentDate == nil {
		return lead.StatusHealthy, "No appointment scheduled"
	}
	now := e.now().UTC()
	days := lead.DaysSince(*l.AppointmentDate, now)

	// Approved leads stop being "fine" once they sit unmodified too long.
	if lead.SameStage(l.CurrentStage, lead.StageApprovedByLocator) {
		modified := l.ModifiedTime
		if modified == nil {
			modified = l.AppointmentDate
		}
		if lead.DaysSince(*modified, now) >= e.thresholds.LegacyStaleDays {
			return lead.StatusNeedsAttention, "Approved but not checked in"
		}
	}

	status := lead.StatusHealthy
	reason := "Recent appointment"
	switch {
	case days >= e.thresholds.LegacyStaleDays:
		status = lead.StatusStale
		reason = fmt.Sprintf("No follow-up for %d days", days)
	case days >= e.thresholds.LegacyAtRiskDays:
		status = lead.StatusAtRisk
		reason = fmt.Sprintf("Appointment was %d days ago", days)
	}

	// An unacknowledged appointment is never healthy, whatever the day count.
	if status == lead.StatusHealthy && lead.SameStage(l.CurrentStage, lead.StageAwaitingAck) {
		return lead.StatusAtRisk, "Appointment not acknowledged"
	}
	return status, reason
}

// CountStatuses tallies classified leads per status for trend snapshots.
func CountStatuses(classified []lead.Classified) map[lead.Status]int {
	counts := make(map[lead.Status]int, 4)
	for _, c := range classified {
		counts[c.Status]++
	}
	return counts
}

// lastActivity returns the most recent of the last stage change and the note
// timestamp, falling back to the appointment date when the lead has neither.
// Synthetic transitions are skipped: their timestamps record when the gap was
// noticed locally, not when anything happened upstream.
func lastActivity(l lead.Lead, history []lead.StageTransition, note lead.Note) *time.Time {
	var latest *time.Time
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Synthetic {
			continue
		}
		if t := history[i].ChangedAt; !t.IsZero() {
			latest = &t
		}
		break
	}
	if note.Time != nil && (latest == nil || note.Time.After(*latest)) {
		latest = note.Time
	}
	if latest == nil {
		latest = l.AppointmentDate
	}
	return latest
}

// hasProgressed reports whether the lead ever moved out of the initial
// awaiting-acknowledgment stage, either per its history or its current stage.
func hasProgressed(l lead.Lead, history []lead.StageTransition) bool {
	if l.CurrentStage != "" && !lead.SameStage(l.CurrentStage, lead.StageAwaitingAck) {
		return true
	}
	for _, t := range history {
		if !lead.SameStage(t.ToStage, lead.StageAwaitingAck) {
			return true
		}
	}
	return false
}
