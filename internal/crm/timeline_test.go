package crm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchStageHistory_ExtractsStageChanges(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v2/Leads/lead-1/__timeline", r.URL.Path)
		assert.Equal(t, "field_update", r.URL.Query().Get("filter"))

		// Newest first, the way the upstream serves it. Includes a non-stage
		// field change that must be ignored.
		_, _ = w.Write([]byte(`{
			"__timeline": [
				{
					"done_time": "2026-03-10T09:00:00+00:00",
					"field_history": [
						{"api_name": "Stage", "_value": "Green/Delivered", "_previous_value": "Scheduled"}
					]
				},
				{
					"done_time": "2026-03-01T09:00:00+00:00",
					"field_history": [
						{"api_name": "Owner", "_value": "someone", "_previous_value": null},
						{"api_name": "Stage", "_value": "Scheduled", "_previous_value": null}
					]
				}
			]
		}`))
	}))

	transitions, err := c.FetchStageHistory(context.Background(), "tok", "lead-1")
	require.NoError(t, err)
	require.Len(t, transitions, 2)

	// Oldest first.
	assert.Nil(t, transitions[0].FromStage)
	assert.Equal(t, "Scheduled", transitions[0].ToStage)
	require.NotNil(t, transitions[1].FromStage)
	assert.Equal(t, "Scheduled", *transitions[1].FromStage)
	assert.Equal(t, "Green/Delivered", transitions[1].ToStage)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), transitions[1].ChangedAt)
}

func TestFetchStageHistory_NoTimeline(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	transitions, err := c.FetchStageHistory(context.Background(), "tok", "lead-1")
	require.NoError(t, err)
	assert.NotNil(t, transitions)
	assert.Empty(t, transitions)
}

func TestFetchStageHistory_SkipsNullValues(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"__timeline": [
				{
					"done_time": "2026-03-01T09:00:00+00:00",
					"field_history": [
						{"api_name": "Stage", "_value": null, "_previous_value": "Scheduled"}
					]
				}
			]
		}`))
	}))

	transitions, err := c.FetchStageHistory(context.Background(), "tok", "lead-1")
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestFetchStageHistory_MalformedTimeline(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"__timeline": {"not": "a list"}}`))
	}))

	_, err := c.FetchStageHistory(context.Background(), "tok", "lead-1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))
}
