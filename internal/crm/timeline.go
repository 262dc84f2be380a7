package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/jonathan/panopticon/internal/lead"
	"github.com/jonathan/panopticon/internal/schemas"
)

// timelineResponse is the per-record field-change history payload.
type timelineResponse struct {
	Timeline []struct {
		DoneTime     string `json:"done_time"`
		FieldHistory []struct {
			APIName       string  `json:"api_name"`
			Value         *string `json:"_value"`
			PreviousValue *string `json:"_previous_value"`
		} `json:"field_history"`
	} `json:"__timeline"`
}

// FetchStageHistory retrieves the stage transitions for one lead from the
// timeline endpoint, chronologically sorted (oldest first). Only "Stage"
// field changes are extracted; other field updates are ignored. The token is
// pre-fetched by the coordinator so workers never touch shared token state.
func (c *Client) FetchStageHistory(ctx context.Context, token, leadID string) ([]lead.StageTransition, error) {
	params := url.Values{
		"per_page": {"100"},
		"filter":   {"field_update"},
	}
	path := fmt.Sprintf("/crm/v2/Leads/%s/__timeline", leadID)
	resp, err := c.ExecuteWithToken(ctx, token, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stage history for lead %s: %w", leadID, err)
	}

	var body timelineResponse
	if len(resp.Body) > 0 {
		if err := schemas.Validate(schemas.TimelineResponse, resp.Body); err != nil {
			return nil, &APIError{Kind: KindMalformed, Message: "invalid timeline response", Cause: err}
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, &APIError{Kind: KindMalformed, Message: "invalid timeline response", Cause: err}
		}
	}

	transitions := make([]lead.StageTransition, 0)
	for _, event := range body.Timeline {
		for _, change := range event.FieldHistory {
			if change.APIName != "Stage" || change.Value == nil {
				continue
			}
			changedAt := lead.ParseCRMTime(event.DoneTime)
			t := lead.StageTransition{
				FromStage: change.PreviousValue,
				ToStage:   *change.Value,
			}
			if changedAt != nil {
				t.ChangedAt = *changedAt
			}
			transitions = append(transitions, t)
		}
	}

	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].ChangedAt.Before(transitions[j].ChangedAt)
	})
	return transitions, nil
}
