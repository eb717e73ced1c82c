// Package risk evaluates additive adverse-effect rules for a patient against
// catalog records. Rules are independent and results are not ranked.
package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
)

const (
	geriatricAge = 65

	// eGFR thresholds in mL/min/1.73m2
	renalImpairedBelow = 60
	renalSevereBelow   = 30

	EffectAccumulation      = "medication accumulation"
	EffectAlteredMetabolism = "altered metabolism"
)

// Factors are the patient attributes the rules look at. Nil or empty values
// disable the corresponding rule.
type Factors struct {
	Age             *int
	Gender          string
	RenalFunction   *float64
	HepaticFunction string
}

// FactorsFor extracts the risk factors from a patient context.
func FactorsFor(p entities.PatientContext) Factors {
	return Factors{
		Age:             p.Age,
		Gender:          p.Gender,
		RenalFunction:   p.RenalFunction,
		HepaticFunction: p.HepaticFunction,
	}
}

// Estimate returns one entry per record with at least one triggered risk, in
// record order. Records without risks are omitted.
func Estimate(records []entities.MedicationRecord, f Factors) []entities.MedicationRisk {
	out := []entities.MedicationRisk{}
	for i := range records {
		if risks := EstimateRecord(&records[i], f); len(risks) > 0 {
			out = append(out, entities.MedicationRisk{
				MedicationName: records[i].Name,
				Risks:          risks,
			})
		}
	}
	return out
}

// EstimateRecord evaluates every rule for a single record.
func EstimateRecord(m *entities.MedicationRecord, f Factors) []entities.RiskEntry {
	var risks []entities.RiskEntry

	if f.Age != nil && *f.Age > geriatricAge {
		for _, p := range m.GeriatricPrecautions {
			risks = append(risks, entities.RiskEntry{
				Effect:      p,
				Probability: entities.ProbabilityMedium,
				Reason:      fmt.Sprintf("Patient age %d is above %d", *f.Age, geriatricAge),
			})
		}
	}

	if gender := strings.ToLower(strings.TrimSpace(f.Gender)); gender != "" {
		// Keys are visited in sorted order so "Female" and "female" always
		// contribute in the same order.
		keys := make([]string, 0, len(m.GenderSpecificRisks))
		for key := range m.GenderSpecificRisks {
			if strings.ToLower(strings.TrimSpace(key)) == gender {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			for _, e := range m.GenderSpecificRisks[key] {
				risks = append(risks, entities.RiskEntry{
					Effect:      e,
					Probability: entities.ProbabilityMedium,
					Reason:      "Gender-specific risk for " + gender + " patients",
				})
			}
		}
	}

	if f.RenalFunction != nil && *f.RenalFunction < renalImpairedBelow && m.RequiresRenalAdjustment() {
		prob := entities.ProbabilityMedium
		if *f.RenalFunction < renalSevereBelow {
			prob = entities.ProbabilityHigh
		}
		risks = append(risks, entities.RiskEntry{
			Effect:      EffectAccumulation,
			Probability: prob,
			Reason:      fmt.Sprintf("Reduced renal function (eGFR %g) with renally adjusted medication", *f.RenalFunction),
		})
	}

	if strings.EqualFold(strings.TrimSpace(f.HepaticFunction), entities.HepaticImpaired) && m.RequiresHepaticAdjustment() {
		risks = append(risks, entities.RiskEntry{
			Effect:      EffectAlteredMetabolism,
			Probability: entities.ProbabilityHigh,
			Reason:      "Hepatic impairment with hepatically adjusted medication",
		})
	}

	return risks
}
