package dosage

import (
	"fmt"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/units"
)

// Therapeutic level outcomes.
const (
	LevelInRange = "in-range"
	LevelBelow   = "below"
	LevelAbove   = "above"
	LevelUnknown = "unknown"
)

// CheckTherapeuticLevel compares a measured drug level with the record's
// therapeutic ranges. The range is chosen by timing; lab and reference units
// must match exactly, no conversion is attempted.
func CheckTherapeuticLevel(record *entities.MedicationRecord, level float64, unit, timing string) entities.TherapeuticCheckResult {
	if record == nil || len(record.TherapeuticRanges) == 0 {
		return entities.TherapeuticCheckResult{
			InRange: true,
			Status:  LevelUnknown,
			Message: "no therapeutic range defined; level could not be interpreted",
		}
	}

	selected := record.TherapeuticRanges[0]
	if timing != "" {
		for _, r := range record.TherapeuticRanges {
			if r.Timing == timing {
				selected = r
				break
			}
		}
	}

	if units.Normalize(unit) != units.Normalize(selected.Unit) {
		return entities.TherapeuticCheckResult{
			InRange:      false,
			Status:       LevelUnknown,
			AppliedRange: &selected,
			Message:      fmt.Sprintf("unit mismatch: level reported in %s but %s range is in %s", unit, record.Name, selected.Unit),
		}
	}

	result := entities.TherapeuticCheckResult{AppliedRange: &selected}
	bounds := formatRange(selected.Min, selected.Max, selected.Unit)
	switch {
	case level < selected.Min:
		result.Status = LevelBelow
		result.Message = fmt.Sprintf("level %s %s is below the therapeutic range of %s", formatNumber(level), unit, bounds)
	case level > selected.Max:
		result.Status = LevelAbove
		result.Message = fmt.Sprintf("level %s %s is above the therapeutic range of %s", formatNumber(level), unit, bounds)
	default:
		result.InRange = true
		result.Status = LevelInRange
		result.Message = fmt.Sprintf("level is within the therapeutic range of %s", bounds)
	}
	return result
}
