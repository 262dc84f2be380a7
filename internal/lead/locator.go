package lead

import "strings"

// Contact holds the resolved contact links for a lead's locator.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Directory resolves locator names to contact information.
type Directory interface {
	Lookup(locatorName string) (Contact, bool)
}

// StaticDirectory is a Directory backed by a fixed in-memory table, keyed by
// case-insensitive locator name.
type StaticDirectory struct {
	entries map[string]Contact
}

// NewStaticDirectory builds a directory from the given contacts.
func NewStaticDirectory(contacts []Contact) *StaticDirectory {
	entries := make(map[string]Contact, len(contacts))
	for _, c := range contacts {
		entries[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}
	return &StaticDirectory{entries: entries}
}

// Lookup returns the contact for a locator name, with tel:/mailto: links
// already applied.
func (d *StaticDirectory) Lookup(locatorName string) (Contact, bool) {
	c, ok := d.entries[strings.ToLower(strings.TrimSpace(locatorName))]
	if !ok {
		return Contact{Name: locatorName}, false
	}
	out := Contact{Name: c.Name}
	if c.Phone != "" {
		out.Phone = "tel:" + strings.ReplaceAll(c.Phone, " ", "")
	}
	if c.Email != "" {
		out.Email = "mailto:" + c.Email
	}
	return out, true
}
