package entities

const (
	ProbabilityHigh   = "high"
	ProbabilityMedium = "medium"
	ProbabilityLow    = "low"
)

type RiskEntry struct {
	Effect      string `json:"effect"`
	Probability string `json:"probability"`
	Reason      string `json:"reason"`
}

type MedicationRisk struct {
	MedicationName string      `json:"medicationName"`
	Risks          []RiskEntry `json:"risks"`
}
