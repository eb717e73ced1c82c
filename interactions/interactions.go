// Package interactions matches a candidate medication's declared interaction
// partners against a patient's current medications.
package interactions

import (
	"context"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/textnorm"
)

// Matcher resolves medications through a catalog.
type Matcher struct {
	catalog interfaces.MedicationCatalog
}

// NewMatcher creates a matcher backed by catalog.
func NewMatcher(catalog interfaces.MedicationCatalog) *Matcher {
	return &Matcher{catalog: catalog}
}

// CheckInteractions returns at most one finding per current medication: the
// first declared partner of the candidate that equals, contains or is
// contained in the current medication name. An unresolved candidate yields no
// findings. Errors only come from the catalog.
func (m *Matcher) CheckInteractions(ctx context.Context, candidate string, current []string) ([]entities.InteractionFinding, error) {
	record, err := m.catalog.FindByNameOrAlias(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return []entities.InteractionFinding{}, nil
	}
	return MatchRecord(record, current), nil
}

// MatchRecord applies the matching rules to an already resolved record.
func MatchRecord(record *entities.MedicationRecord, current []string) []entities.InteractionFinding {
	findings := []entities.InteractionFinding{}
	if record == nil {
		return findings
	}

	partners := make([]string, len(record.Interactions))
	for i, in := range record.Interactions {
		partners[i] = textnorm.Key(in.Medication)
	}

	for _, name := range current {
		cur := textnorm.Key(name)
		if cur == "" {
			continue
		}
		for i, partner := range partners {
			if !namesMatch(partner, cur) {
				continue
			}
			in := record.Interactions[i]
			findings = append(findings, entities.InteractionFinding{
				Medication:    name,
				Severity:      in.Severity,
				Description:   in.Description,
				EvidenceLevel: in.EvidenceLevel,
			})
			break
		}
	}

	return findings
}

func namesMatch(partner, current string) bool {
	if partner == "" {
		return false
	}
	return partner == current ||
		strings.Contains(partner, current) ||
		strings.Contains(current, partner)
}

// CheckMedicationInteractions is a presence check over catalog ids. It reports
// whether any pair in the set interacts, looking at declarations on either
// side, and stops at the first interacting pair. It does not say which pair.
// Unknown ids are left out of the returned medication list.
func (m *Matcher) CheckMedicationInteractions(ctx context.Context, ids []string) (*entities.PairwiseInteractionResult, error) {
	records := make([]entities.MedicationRecord, 0, len(ids))
	for _, id := range ids {
		record, err := m.catalog.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}

	result := &entities.PairwiseInteractionResult{Medications: records}

	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if declares(&records[i], &records[j]) || declares(&records[j], &records[i]) {
				result.HasPotentialInteractions = true
				return result, nil
			}
		}
	}

	return result, nil
}

// declares reports whether a lists b as an interaction partner, by canonical
// or generic name.
func declares(a, b *entities.MedicationRecord) bool {
	name := textnorm.Key(b.Name)
	generic := textnorm.Key(b.GenericName)
	for _, in := range a.Interactions {
		partner := textnorm.Key(in.Medication)
		if partner == "" {
			continue
		}
		if partner == name || (generic != "" && partner == generic) {
			return true
		}
	}
	return false
}
