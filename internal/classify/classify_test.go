package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/panopticon/internal/lead"
)

// fixedNow anchors every scenario so day counts are deterministic.
var fixedNow = time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	e := NewEngine(DefaultThresholds())
	e.now = func() time.Time { return fixedNow }
	return e
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func daysAgo(n int) *time.Time {
	return timePtr(fixedNow.AddDate(0, 0, -n))
}

func TestClassify_TerminalStageWinsOverEverything(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		Name:            "Hardee's #1523",
		CurrentStage:    "Green/ Delivered",
		AppointmentDate: daysAgo(90),
	}

	status, reason := e.Classify(l, nil, lead.Note{}, nil)
	assert.Equal(t, lead.StatusHealthy, status)
	assert.Equal(t, "Completed - Green/ Delivered", reason)
}

func TestClassify_DeliveryOnRecord(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		Name:            "Hardee's #1523",
		CurrentStage:    "HLM Follow up",
		AppointmentDate: daysAgo(90),
	}
	deliveries := []lead.Delivery{{ID: "d-1", Name: "Hardee's Delivery", LeadID: "lead-1"}}

	// The delivery beats the 90-day silence: the outcome already happened.
	status, reason := e.Classify(l, nil, lead.Note{}, deliveries)
	assert.Equal(t, lead.StatusHealthy, status)
	assert.Equal(t, "Delivery on record - Hardee's Delivery", reason)
}

func TestClassify_DeliveryReasonFallsBackToID(t *testing.T) {
	e := testEngine()
	l := lead.Lead{ID: "lead-1", Name: "Hardee's #1523", CurrentStage: "HLM Follow up"}
	deliveries := []lead.Delivery{{ID: "d-1", LeadID: "lead-1"}}

	_, reason := e.Classify(l, nil, lead.Note{}, deliveries)
	assert.Equal(t, "Delivery on record - d-1", reason)
}

func TestClassify_RecentNoteIsDocumentedFollowUp(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		CurrentStage:    "HLM Follow up",
		AppointmentDate: daysAgo(10),
	}
	note := lead.Note{Content: "Visited site", Time: timePtr(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))}

	status, reason := e.Classify(l, nil, note, nil)
	assert.Equal(t, lead.StatusHealthy, status)
	assert.Equal(t, "Follow-up documented on 2026-03-10", reason)
}

func TestClassify_NoteBeforeAppointmentDoesNotCount(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		CurrentStage:    "HLM Follow up",
		AppointmentDate: daysAgo(5),
	}
	note := lead.Note{Content: "Pre-visit prep", Time: daysAgo(8)}

	status, _ := e.Classify(l, nil, note, nil)
	assert.NotEqual(t, lead.StatusHealthy, status)
}

func TestClassify_StaleAfterProlongedSilence(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		CurrentStage:    "HLM Follow up",
		AppointmentDate: daysAgo(16),
	}

	// Progressed, but silence beats the acknowledgment rule.
	status, reason := e.Classify(l, nil, lead.Note{}, nil)
	assert.Equal(t, lead.StatusStale, status)
	assert.Equal(t, "No activity for 16 days", reason)
}

func TestClassify_StaleUsesLastActivityNotAppointment(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		CurrentStage:    "HLM Follow up",
		AppointmentDate: daysAgo(30),
	}
	history := []lead.StageTransition{
		{ToStage: "HLM Follow up", ChangedAt: *daysAgo(5)},
	}

	// The recent stage change resets the clock; the lead progressed but has no
	// documented follow-up.
	status, reason := e.Classify(l, history, lead.Note{}, nil)
	assert.Equal(t, lead.StatusNeedsAttention, status)
	assert.Equal(t, "Stage progressed but no follow-up documented since appointment", reason)
}

func TestClassify_SyntheticTransitionDoesNotResetClock(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		CurrentStage:    "HLM Follow up",
		AppointmentDate: daysAgo(16),
	}
	// A locally bridged transition stamped "now" is not real upstream activity.
	history := []lead.StageTransition{
		{ToStage: "HLM Follow up", ChangedAt: fixedNow, Synthetic: true},
	}

	status, reason := e.Classify(l, history, lead.Note{}, nil)
	assert.Equal(t, lead.StatusStale, status)
	assert.Equal(t, "No activity for 16 days", reason)
}

func TestClassify_NeverAcknowledged(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		CurrentStage:    lead.StageAwaitingAck,
		AppointmentDate: daysAgo(3),
	}

	status, reason := e.Classify(l, nil, lead.Note{}, nil)
	assert.Equal(t, lead.StatusAtRisk, status)
	assert.Equal(t, "Appointment has never been acknowledged", reason)
}

func TestClassify_HistoryAloneShowsProgression(t *testing.T) {
	e := testEngine()
	l := lead.Lead{
		ID:              "lead-1",
		AppointmentDate: daysAgo(3),
	}
	history := []lead.StageTransition{
		{ToStage: "Green - Approved By Locator", ChangedAt: *daysAgo(2)},
	}

	status, _ := e.Classify(l, history, lead.Note{}, nil)
	assert.Equal(t, lead.StatusNeedsAttention, status)
}

func TestClassifySimple(t *testing.T) {
	tests := []struct {
		name       string
		l          lead.Lead
		wantStatus lead.Status
		wantReason string
	}{
		{
			name:       "no appointment",
			l:          lead.Lead{ID: "1"},
			wantStatus: lead.StatusHealthy,
			wantReason: "No appointment scheduled",
		},
		{
			name:       "recent appointment",
			l:          lead.Lead{ID: "1", CurrentStage: "HLM Follow up", AppointmentDate: daysAgo(2)},
			wantStatus: lead.StatusHealthy,
			wantReason: "Recent appointment",
		},
		{
			name:       "at risk after five days",
			l:          lead.Lead{ID: "1", CurrentStage: "HLM Follow up", AppointmentDate: daysAgo(5)},
			wantStatus: lead.StatusAtRisk,
			wantReason: "Appointment was 5 days ago",
		},
		{
			name:       "stale after seven days",
			l:          lead.Lead{ID: "1", CurrentStage: "HLM Follow up", AppointmentDate: daysAgo(8)},
			wantStatus: lead.StatusStale,
			wantReason: "No follow-up for 8 days",
		},
		{
			name:       "unacknowledged is never healthy",
			l:          lead.Lead{ID: "1", CurrentStage: lead.StageAwaitingAck, AppointmentDate: daysAgo(1)},
			wantStatus: lead.StatusAtRisk,
			wantReason: "Appointment not acknowledged",
		},
		{
			name: "approved but sitting unmodified",
			l: lead.Lead{
				ID:              "1",
				CurrentStage:    lead.StageApprovedByLocator,
				AppointmentDate: daysAgo(2),
				ModifiedTime:    daysAgo(9),
			},
			wantStatus: lead.StatusNeedsAttention,
			wantReason: "Approved but not checked in",
		},
		{
			name: "approved and recently touched",
			l: lead.Lead{
				ID:              "1",
				CurrentStage:    lead.StageApprovedByLocator,
				AppointmentDate: daysAgo(2),
				ModifiedTime:    daysAgo(1),
			},
			wantStatus: lead.StatusHealthy,
			wantReason: "Recent appointment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine()
			status, reason := e.ClassifySimple(tt.l)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestCountStatuses(t *testing.T) {
	classified := []lead.Classified{
		{Status: lead.StatusStale},
		{Status: lead.StatusStale},
		{Status: lead.StatusHealthy},
		{Status: lead.StatusAtRisk},
	}
	counts := CountStatuses(classified)
	assert.Equal(t, 2, counts[lead.StatusStale])
	assert.Equal(t, 1, counts[lead.StatusAtRisk])
	assert.Equal(t, 0, counts[lead.StatusNeedsAttention])
	assert.Equal(t, 1, counts[lead.StatusHealthy])
}
