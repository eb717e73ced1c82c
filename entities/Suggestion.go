package entities

// Interaction status of an enriched suggestion. Unknown means the lookup
// failed, which is not the same as no interactions.
const (
	InteractionStatusNotChecked = "not-checked"
	InteractionStatusChecked    = "checked"
	InteractionStatusUnknown    = "unknown"
)

// Defaults applied by the suggestion parser when a field is absent.
const (
	DefaultDirection     = "As directed by physician"
	SentinelMedication   = "Consult healthcare provider"
	SentinelInstructions = "Unable to parse AI suggestions. Please consult with a healthcare provider for proper medication recommendations."
)

type PrescriptionSuggestion struct {
	Medication        string               `json:"medication"`
	Dosage            string               `json:"dosage"`
	Frequency         string               `json:"frequency"`
	Duration          string               `json:"duration"`
	Instructions      string               `json:"instructions"`
	Warnings          []string             `json:"warnings"`
	Contraindications []string             `json:"contraindications"`
	SideEffects       []string             `json:"sideEffects"`
	Alternatives      []string             `json:"alternatives"`
	InteractionRisks  []InteractionFinding `json:"interactionRisks"`
	InteractionStatus string               `json:"interactionStatus"`
	DosageCheck       *DosageCheckResult   `json:"dosageCheck,omitempty"`
	Risks             []RiskEntry          `json:"risks,omitempty"`
	// CatalogID is set when the suggested medication resolved to a catalog record.
	CatalogID string `json:"catalogId,omitempty"`
}

// IsSentinel reports whether s is the "could not parse" placeholder.
func (s PrescriptionSuggestion) IsSentinel() bool {
	return s.Medication == SentinelMedication
}

// SentinelSuggestion is returned when completion text has no usable structure.
func SentinelSuggestion() PrescriptionSuggestion {
	return PrescriptionSuggestion{
		Medication:        SentinelMedication,
		Dosage:            "N/A",
		Frequency:         "N/A",
		Duration:          "N/A",
		Instructions:      SentinelInstructions,
		Warnings:          []string{},
		Contraindications: []string{},
		SideEffects:       []string{},
		Alternatives:      []string{},
		InteractionRisks:  []InteractionFinding{},
		InteractionStatus: InteractionStatusNotChecked,
	}
}

// SuggestionResult is the tagged outcome of parsing a completion.
// Exactly one of Parsed (len > 0) or Unparseable holds.
type SuggestionResult struct {
	Suggestions []PrescriptionSuggestion
	Unparseable bool
	Reason      string
}

// List returns the suggestions, or the single sentinel when unparseable.
func (r SuggestionResult) List() []PrescriptionSuggestion {
	if r.Unparseable || len(r.Suggestions) == 0 {
		return []PrescriptionSuggestion{SentinelSuggestion()}
	}
	return r.Suggestions
}
