package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonathan/panopticon/internal/lead"
	"github.com/jonathan/panopticon/internal/schemas"
)

// leadsPerPage is the row limit per page of the bulk lead query.
const leadsPerPage = 200

// queryResponse is the common shape of bulk record queries.
type queryResponse struct {
	Data []map[string]any `json:"data"`
	Info struct {
		MoreRecords bool `json:"more_records"`
		Page        int  `json:"page"`
		Count       int  `json:"count"`
	} `json:"info"`
}

// FetchLeads retrieves every lead with a scheduled appointment, following
// pagination until the upstream reports no more records.
func (c *Client) FetchLeads(ctx context.Context) ([]lead.Lead, error) {
	var leads []lead.Lead
	for page := 1; ; page++ {
		params := url.Values{
			"fields":   {strings.Join(lead.QueryFields(), ",")},
			"criteria": {"(APPT_Date:is_not_empty:)"},
			"per_page": {strconv.Itoa(leadsPerPage)},
			"page":     {strconv.Itoa(page)},
		}
		resp, err := c.Execute(ctx, http.MethodGet, "/crm/v2/Leads", params, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch leads page %d: %w", page, err)
		}

		body, err := decodeQueryResponse(resp.Body)
		if err != nil {
			c.recordError(err)
			return nil, err
		}
		for _, record := range body.Data {
			leads = append(leads, lead.MapRecord(record))
		}
		if !body.Info.MoreRecords {
			break
		}
	}
	log.Printf("[crm] fetched %d leads with appointments", len(leads))
	return leads, nil
}

// FetchDeliveries retrieves the delivery records used for lead
// cross-referencing via the SQL-like bulk query endpoint.
func (c *Client) FetchDeliveries(ctx context.Context) ([]lead.Delivery, error) {
	var deliveries []lead.Delivery
	offset := 0
	for {
		query := fmt.Sprintf(
			"select id, Name, Lead_Reference, Street_Address, Zip_Code from Deliveries where id is not null order by Name asc limit %d, %d",
			offset, leadsPerPage,
		)
		resp, err := c.Execute(ctx, http.MethodPost, "/crm/v2/coql", nil, map[string]string{"select_query": query})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch deliveries: %w", err)
		}

		body, err := decodeQueryResponse(resp.Body)
		if err != nil {
			c.recordError(err)
			return nil, err
		}
		for _, record := range body.Data {
			deliveries = append(deliveries, lead.MapDelivery(record))
		}
		if !body.Info.MoreRecords {
			break
		}
		offset += leadsPerPage
	}
	log.Printf("[crm] fetched %d delivery records", len(deliveries))
	return deliveries, nil
}

// TestConnection forces a fresh token exchange and reports whether the
// configured credentials are valid.
func (c *Client) TestConnection(ctx context.Context) error {
	c.tokens.Invalidate()
	if c.syncCtx != nil {
		c.syncCtx.ClearError()
		c.syncCtx.ClearPartial()
	}
	if _, err := c.tokens.Token(ctx); err != nil {
		c.recordError(err)
		return err
	}
	c.clearError()
	return nil
}

// decodeQueryResponse validates and decodes a bulk query payload. An empty
// body (204-style responses) decodes as zero records.
func decodeQueryResponse(raw []byte) (*queryResponse, error) {
	var body queryResponse
	if len(raw) == 0 {
		return &body, nil
	}
	if err := schemas.Validate(schemas.LeadsResponse, raw); err != nil {
		return nil, &APIError{Kind: KindMalformed, Message: "invalid bulk query response", Cause: err}
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &APIError{Kind: KindMalformed, Message: "invalid bulk query response", Cause: err}
	}
	return &body, nil
}
