package classify

import (
	"strings"

	"github.com/jonathan/panopticon/internal/lead"
)

// MatchDelivery tries to find the delivery record belonging to a lead.
// An exact lead-id backreference wins outright. Otherwise the best
// name-similarity candidate at or above the configured threshold is taken:
// strong matches are accepted on name alone, while mid-band matches must be
// corroborated by zip equality and address containment, which means a lead
// missing either field cannot corroborate and the candidate is rejected.
func (e *Engine) MatchDelivery(l lead.Lead, deliveries []lead.Delivery) (lead.Delivery, bool) {
	for _, d := range deliveries {
		if d.LeadID != "" && d.LeadID == l.ID {
			return d, true
		}
	}

	if l.Name == "" {
		return lead.Delivery{}, false
	}

	var (
		best      lead.Delivery
		bestRatio float64
	)
	for _, d := range deliveries {
		if d.Name == "" {
			continue
		}
		ratio := Similarity(l.Name, d.Name)
		if ratio > bestRatio {
			best = d
			bestRatio = ratio
		}
	}

	if bestRatio < e.thresholds.NameMatch {
		return lead.Delivery{}, false
	}
	if bestRatio >= e.thresholds.StrongNameMatch {
		return best, true
	}
	if corroborates(l, best) {
		return best, true
	}
	return lead.Delivery{}, false
}

// corroborates checks the mid-band evidence: exact zip equality plus address
// containment in either direction.
func corroborates(l lead.Lead, d lead.Delivery) bool {
	if l.ZipCode == "" || l.StreetAddress == "" {
		return false
	}
	if strings.TrimSpace(l.ZipCode) != strings.TrimSpace(d.ZipCode) {
		return false
	}
	leadAddr := normalizeName(l.StreetAddress)
	deliveryAddr := normalizeName(d.StreetAddress)
	if leadAddr == "" || deliveryAddr == "" {
		return false
	}
	return strings.Contains(leadAddr, deliveryAddr) || strings.Contains(deliveryAddr, leadAddr)
}
