package entities

// Age groups used to qualify dosage ranges.
const (
	AgeGroupPediatric = "pediatric"
	AgeGroupAdult     = "adult"
	AgeGroupGeriatric = "geriatric"
)

// Sampling times for therapeutic ranges.
const (
	TimingPeak        = "peak"
	TimingTrough      = "trough"
	TimingSteadyState = "steady-state"
)

// DosageRange is a reference dose window owned by a MedicationRecord.
type DosageRange struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Unit        string  `json:"unit"`
	AgeGroup    string  `json:"ageGroup,omitempty"`
	WeightBased bool    `json:"weightBased,omitempty"`
	Route       string  `json:"route,omitempty"`
	Condition   string  `json:"condition,omitempty"`
}

// TherapeuticRange is a blood-concentration window for lab checks.
type TherapeuticRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Unit   string  `json:"unit"`
	Timing string  `json:"timing,omitempty"`
}
