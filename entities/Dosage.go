package entities

// ParsedDosage is the structured form of a dosage string. Failure to parse is
// reported through IsValid and Message, never through an error.
type ParsedDosage struct {
	Value     float64 `json:"value"`
	MaxValue  float64 `json:"maxValue,omitempty"`
	Unit      string  `json:"unit"`
	PerWeight bool    `json:"perWeight,omitempty"`
	Frequency string  `json:"frequency,omitempty"`
	Route     string  `json:"route,omitempty"`
	IsValid   bool    `json:"isValid"`
	Message   string  `json:"message,omitempty"`
}

// PatientAttributes qualifies a dosage check. Nil fields are unknown.
type PatientAttributes struct {
	WeightKg  *float64 `json:"weightKg,omitempty"`
	Age       *int     `json:"age,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Route     string   `json:"route,omitempty"`
}

type DosageCheckResult struct {
	InRange      bool         `json:"inRange"`
	Message      string       `json:"message,omitempty"`
	AppliedRange *DosageRange `json:"appliedRange,omitempty"`
	// ComparedValue is the dose after unit conversion, in the applied range's unit.
	ComparedValue float64 `json:"comparedValue,omitempty"`
}

type TherapeuticCheckResult struct {
	InRange      bool              `json:"inRange"`
	Status       string            `json:"status"` // in-range | below | above | unknown
	Message      string            `json:"message,omitempty"`
	AppliedRange *TherapeuticRange `json:"appliedRange,omitempty"`
}
