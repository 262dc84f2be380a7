// Package lead defines the normalized lead domain model shared by the sync
// layer and the classification engine.
package lead

import "time"

// Lead is an immutable snapshot of a CRM lead record for one sync cycle.
// Every field except ID is optional; the upstream schema drifts and records
// routinely arrive with fields missing.
type Lead struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	AppointmentDate *time.Time `json:"appointment_date,omitempty"`
	LocatorName     string     `json:"locator_name,omitempty"`
	StreetAddress   string     `json:"street_address,omitempty"`
	ZipCode         string     `json:"zip_code,omitempty"`
	CreatedTime     *time.Time `json:"created_time,omitempty"`
	ModifiedTime    *time.Time `json:"modified_time,omitempty"`
}

// StageTransition records one pipeline stage change. FromStage is nil for the
// initial transition. Synthetic holds true for locally bridged transitions
// appended when the upstream timeline lags the lead's current stage.
type StageTransition struct {
	FromStage *string   `json:"from_stage"`
	ToStage   string    `json:"to_stage"`
	ChangedAt time.Time `json:"changed_at"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// Note is the latest free-text note on a lead, with HTML already stripped.
// A Note with empty Content and nil Time means "confirmed no notes", which is
// distinct from the lead being absent from a notes map entirely.
type Note struct {
	Content string     `json:"content"`
	Time    *time.Time `json:"time"`
}

// Empty reports whether the note represents a confirmed-absent note.
func (n Note) Empty() bool {
	return n.Content == "" && n.Time == nil
}

// Delivery is a delivery record used only for cross-referencing leads.
type Delivery struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	LeadID        string `json:"lead_id,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	ZipCode       string `json:"zip_code,omitempty"`
}

// Status is the computed follow-up health of a lead.
type Status string

const (
	StatusStale          Status = "stale"
	StatusAtRisk         Status = "at_risk"
	StatusNeedsAttention Status = "needs_attention"
	StatusHealthy        Status = "healthy"
)

// Classified is the consumer-facing output record: a normalized lead plus its
// computed health and resolved locator contact links.
type Classified struct {
	Lead      Lead    `json:"lead"`
	DaysSince int     `json:"days_since"`
	Status    Status  `json:"status"`
	Reason    string  `json:"reason"`
	Contact   Contact `json:"contact"`
}

// DaysSince returns calendar days between t and now in UTC. Negative means t
// is in the future.
func DaysSince(t time.Time, now time.Time) int {
	nowDate := now.UTC().Truncate(24 * time.Hour)
	thenDate := t.UTC().Truncate(24 * time.Hour)
	return int(nowDate.Sub(thenDate).Hours() / 24)
}
