package lead

import (
	"time"
)

// FieldMap translates CRM field names to internal names. It doubles as the
// field projection list for lead queries, so adding an entry here both fetches
// and maps the new field.
var FieldMap = map[string]string{
	"id":             "id",
	"Name":           "name",
	"Stage":          "current_stage",
	"Locator_Name":   "locator_name",
	"APPT_Date":      "appointment_date",
	"Street_Address": "street_address",
	"Zip_Code":       "zip_code",
	"Created_Time":   "created_time",
	"Modified_Time":  "modified_time",
}

// QueryFields returns the CRM field names to project in lead queries, in a
// stable order.
func QueryFields() []string {
	return []string{
		"id", "Name", "Stage", "Locator_Name", "APPT_Date",
		"Street_Address", "Zip_Code", "Created_Time", "Modified_Time",
	}
}

// crmTimeLayouts are the timestamp shapes the CRM is known to emit.
var crmTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseCRMTime parses a CRM timestamp string into UTC. Naive timestamps are
// assumed to be UTC. Returns nil for empty or unparsable input.
func ParseCRMTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range crmTimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		utc := t.UTC()
		return &utc
	}
	return nil
}

// MapRecord normalizes a raw CRM lead record into a Lead. Unknown fields are
// ignored and missing fields stay zero-valued, tolerating upstream schema
// drift.
func MapRecord(record map[string]any) Lead {
	l := Lead{
		ID:            stringField(record, "id"),
		Name:          stringField(record, "Name"),
		CurrentStage:  stringField(record, "Stage"),
		StreetAddress: stringField(record, "Street_Address"),
		ZipCode:       stringField(record, "Zip_Code"),
	}
	l.AppointmentDate = ParseCRMTime(stringField(record, "APPT_Date"))
	l.CreatedTime = ParseCRMTime(stringField(record, "Created_Time"))
	l.ModifiedTime = ParseCRMTime(stringField(record, "Modified_Time"))

	// Locator_Name is a lookup field: the CRM returns {id, name} rather than
	// a bare string.
	switch v := record["Locator_Name"].(type) {
	case string:
		l.LocatorName = v
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			l.LocatorName = name
		}
	}
	return l
}

// MapDelivery normalizes a raw CRM delivery record.
func MapDelivery(record map[string]any) Delivery {
	d := Delivery{
		ID:            stringField(record, "id"),
		Name:          stringField(record, "Name"),
		StreetAddress: stringField(record, "Street_Address"),
		ZipCode:       stringField(record, "Zip_Code"),
	}
	// Lead backreference is a lookup field like Locator_Name.
	switch v := record["Lead_Reference"].(type) {
	case string:
		d.LeadID = v
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			d.LeadID = id
		}
	}
	return d
}

func stringField(record map[string]any, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}
