// Package schemas validates CRM API response shapes against embedded JSON
// Schemas, so malformed upstream payloads surface as typed errors instead of
// silent zero values.
package schemas

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed *.json
var schemaFiles embed.FS

// Schema names accepted by Validate.
const (
	LeadsResponse    = "leads_response"
	TimelineResponse = "timeline_response"
	NotesResponse    = "notes_response"
)

// FieldError is a single validation failure at a specific field path.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports that a payload did not match its schema.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("payload does not match schema %s", e.Schema)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return fmt.Sprintf("payload does not match schema %s: %s", e.Schema, strings.Join(parts, "; "))
}

// Validate checks a raw JSON payload against the named embedded schema.
// Returns *ValidationError when the payload shape is wrong.
func Validate(schemaName string, payload []byte) error {
	schemaBytes, err := schemaFiles.ReadFile(schemaName + ".json")
	if err != nil {
		return fmt.Errorf("unknown schema %s: %w", schemaName, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		// Invalid JSON in the payload is also a shape failure.
		return &ValidationError{
			Schema: schemaName,
			Errors: []FieldError{{Field: "(document)", Message: err.Error()}},
		}
	}

	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Schema: schemaName}
	for _, desc := range result.Errors() {
		verr.Errors = append(verr.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return verr
}
