package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/panopticon/internal/lead"
	"github.com/jonathan/panopticon/internal/schemas"
)

// notesResponse is the related-notes payload, requested sorted by
// modification time descending and limited to one row.
type notesResponse struct {
	Data []struct {
		NoteContent  *string `json:"Note_Content"`
		ModifiedTime *string `json:"Modified_Time"`
	} `json:"data"`
}

// FetchLatestNote retrieves the most recent note for one lead. The second
// return value is false when the lead positively has no notes, which callers
// cache via the absence sentinel so the question is not re-asked every cycle.
func (c *Client) FetchLatestNote(ctx context.Context, token, leadID string) (lead.Note, bool, error) {
	params := url.Values{
		"fields":     {"Note_Content,Modified_Time"},
		"sort_by":    {"Modified_Time"},
		"sort_order": {"desc"},
		"per_page":   {"1"},
	}
	path := fmt.Sprintf("/crm/v2/Leads/%s/Notes", leadID)
	resp, err := c.ExecuteWithToken(ctx, token, http.MethodGet, path, params, nil)
	if err != nil {
		return lead.Note{}, false, fmt.Errorf("failed to fetch notes for lead %s: %w", leadID, err)
	}

	var body notesResponse
	if len(resp.Body) > 0 {
		if err := schemas.Validate(schemas.NotesResponse, resp.Body); err != nil {
			return lead.Note{}, false, &APIError{Kind: KindMalformed, Message: "invalid notes response", Cause: err}
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return lead.Note{}, false, &APIError{Kind: KindMalformed, Message: "invalid notes response", Cause: err}
		}
	}

	if len(body.Data) == 0 || body.Data[0].NoteContent == nil || *body.Data[0].NoteContent == "" {
		return lead.Note{}, false, nil
	}

	note := lead.Note{Content: StripHTML(*body.Data[0].NoteContent)}
	if body.Data[0].ModifiedTime != nil {
		note.Time = lead.ParseCRMTime(*body.Data[0].ModifiedTime)
	}
	return note, true, nil
}

// brToNewline rewrites break tags, which carry no text node of their own.
var brToNewline = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n")

// StripHTML reduces note markup to plain text with normalized whitespace.
// Notes written through the CRM's rich-text editor arrive as HTML fragments.
func StripHTML(html string) string {
	html = brToNewline.Replace(html)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	text := doc.Text()
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
