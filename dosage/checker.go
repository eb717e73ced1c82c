package dosage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/textnorm"
	"github.com/thiskanishk/healthassist-cds/units"
)

// AgeGroupFor maps an age in years to a dosage age group.
func AgeGroupFor(age int) string {
	switch {
	case age < 18:
		return entities.AgeGroupPediatric
	case age > 65:
		return entities.AgeGroupGeriatric
	default:
		return entities.AgeGroupAdult
	}
}

// CheckDosage compares dosageText against the record's standard ranges.
//
// Candidate ranges are narrowed by age group, route and condition in that
// order. A filter that would leave no candidates is skipped. The first
// survivor whose unit matches the input wins, else the first survivor.
func CheckDosage(record *entities.MedicationRecord, dosageText string, patient entities.PatientAttributes) entities.DosageCheckResult {
	parsed := Parse(dosageText)
	if !parsed.IsValid {
		return entities.DosageCheckResult{InRange: false, Message: parsed.Message}
	}

	if record == nil || len(record.StandardRanges) == 0 {
		name := "this medication"
		if record != nil {
			name = record.Name
		}
		return entities.DosageCheckResult{
			InRange: true,
			Message: fmt.Sprintf("no standard dosage ranges defined for %s; dose could not be verified", name),
		}
	}

	selected := SelectRange(record.StandardRanges, parsed, patient)
	applied := selected
	rangeUnit := selected.Unit

	if selected.WeightBased && !parsed.PerWeight {
		if patient.WeightKg == nil || *patient.WeightKg <= 0 {
			return entities.DosageCheckResult{
				InRange:      false,
				AppliedRange: &applied,
				Message:      fmt.Sprintf("reference range for %s is weight-based (%s); patient weight is required", record.Name, selected.Unit),
			}
		}
		w := *patient.WeightKg
		applied.Min = selected.Min * w
		applied.Max = selected.Max * w
		rangeUnit = strings.TrimSuffix(units.Normalize(selected.Unit), "/kg")
		applied.Unit = rangeUnit
	}

	lower, err := units.Convert(parsed.Value, parsed.Unit, rangeUnit)
	if err != nil {
		return conversionFailure(err, parsed.Unit, rangeUnit, &applied)
	}
	upper, err := units.Convert(UpperValue(parsed), parsed.Unit, rangeUnit)
	if err != nil {
		return conversionFailure(err, parsed.Unit, rangeUnit, &applied)
	}

	result := entities.DosageCheckResult{AppliedRange: &applied, ComparedValue: upper}
	switch {
	case lower < applied.Min:
		result.Message = fmt.Sprintf("dose %s %s is below the recommended range of %s", formatNumber(lower), rangeUnit, formatRange(applied.Min, applied.Max, rangeUnit))
		result.ComparedValue = lower
	case upper > applied.Max:
		result.Message = fmt.Sprintf("dose %s %s exceeds the recommended range of %s", formatNumber(upper), rangeUnit, formatRange(applied.Min, applied.Max, rangeUnit))
	default:
		result.InRange = true
		result.Message = fmt.Sprintf("dose is within the recommended range of %s", formatRange(applied.Min, applied.Max, rangeUnit))
	}

	return result
}

// SelectRange applies the age, route and condition filters and the unit
// tie-break. ranges must be non-empty.
func SelectRange(ranges []entities.DosageRange, parsed entities.ParsedDosage, patient entities.PatientAttributes) entities.DosageRange {
	candidates := ranges

	if patient.Age != nil {
		group := AgeGroupFor(*patient.Age)
		candidates = narrow(candidates, func(r entities.DosageRange) bool {
			return r.AgeGroup == "" || r.AgeGroup == group
		})
	}

	route := parsed.Route
	if route == "" {
		route = ParseRoute(patient.Route)
	}
	if route != "" {
		candidates = narrow(candidates, func(r entities.DosageRange) bool {
			return r.Route == "" || ParseRoute(r.Route) == route
		})
	}

	if patient.Condition != "" {
		candidates = narrow(candidates, func(r entities.DosageRange) bool {
			return r.Condition == "" || textnorm.Equal(r.Condition, patient.Condition)
		})
	}

	for _, r := range candidates {
		if units.Normalize(r.Unit) == parsed.Unit {
			return r
		}
	}
	return candidates[0]
}

// narrow keeps the ranges accepted by keep, unless that would drop all of them.
func narrow(ranges []entities.DosageRange, keep func(entities.DosageRange) bool) []entities.DosageRange {
	var out []entities.DosageRange
	for _, r := range ranges {
		if keep(r) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return ranges
	}
	return out
}

func conversionFailure(err error, from, to string, applied *entities.DosageRange) entities.DosageCheckResult {
	var msg string
	switch {
	case errors.Is(err, units.ErrIncompatibleUnits):
		fromFamily, _ := units.Family(from)
		toFamily, _ := units.Family(to)
		msg = fmt.Sprintf("incompatible units: dose in %s (%s) cannot be compared with a range in %s (%s)", from, fromFamily, to, toFamily)
	case errors.Is(err, units.ErrUnknownUnit):
		unknown := from
		if units.Known(from) {
			unknown = to
		}
		msg = fmt.Sprintf("unknown unit %q: dose in %s cannot be compared with a range in %s", unknown, from, to)
	default:
		msg = fmt.Sprintf("unit conversion failed: %v", err)
	}
	return entities.DosageCheckResult{InRange: false, Message: msg, AppliedRange: applied}
}

func formatRange(lo, hi float64, unit string) string {
	return fmt.Sprintf("%s-%s %s", formatNumber(lo), formatNumber(hi), unit)
}

func formatNumber(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
