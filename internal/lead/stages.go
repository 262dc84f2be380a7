package lead

import "strings"

// StageAwaitingAck is the initial pipeline stage before the locator has
// acknowledged the appointment.
const StageAwaitingAck = "Appt Not Acknowledged"

// StageApprovedByLocator is the approved-but-needs-check-in stage used by the
// legacy classification special case.
const StageApprovedByLocator = "Green - Approved By Locator"

// StageOrder lists pipeline stages in their canonical progression, used for
// sorting and display.
var StageOrder = []string{
	"Appt Not Acknowledged",
	"HLM Follow up",
	"Green - Approved By Locator",
	"Green - SiteSurvey Sent",
	"Green - LLL Approved",
	"Green - LLL Fulfilled",
	"Green/No-operator",
	"Delivery Requested",
	"Green/Delivered",
	"Declined By Operator",
}

// terminalStages are final-outcome stages after which no follow-up action is
// expected. Keys are normalized via NormalizeStage.
var terminalStages = map[string]bool{
	"green/delivered":      true,
	"green/no-operator":    true,
	"declined by operator": true,
	"rejected":             true,
}

// NormalizeStage canonicalizes a stage label for comparison: lowercase,
// collapsed inner whitespace, no spaces around slashes. CRM users type stage
// names with inconsistent spacing ("Green/ Delivered" vs "Green/Delivered").
func NormalizeStage(stage string) string {
	s := strings.ToLower(strings.TrimSpace(stage))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " /", "/")
	s = strings.ReplaceAll(s, "/ ", "/")
	return s
}

// IsTerminalStage reports whether the stage represents a final outcome.
func IsTerminalStage(stage string) bool {
	return terminalStages[NormalizeStage(stage)]
}

// SameStage compares two stage labels under normalization.
func SameStage(a, b string) bool {
	return NormalizeStage(a) == NormalizeStage(b)
}

// StageRank returns the position of a stage in the canonical progression, or
// len(StageOrder) for unknown stages so they sort last.
func StageRank(stage string) int {
	for i, s := range StageOrder {
		if SameStage(s, stage) {
			return i
		}
	}
	return len(StageOrder)
}
