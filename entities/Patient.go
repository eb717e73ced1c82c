package entities

// Hepatic function tags.
const (
	HepaticNormal   = "normal"
	HepaticImpaired = "impaired"
)

// PatientContext accompanies a suggestion request.
type PatientContext struct {
	Age                *int     `json:"age,omitempty"`
	WeightKg           *float64 `json:"weightKg,omitempty"`
	Gender             string   `json:"gender,omitempty"`
	Condition          string   `json:"condition,omitempty"`
	CurrentMedications []string `json:"currentMedications,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	// RenalFunction is an eGFR value in mL/min/1.73m2.
	RenalFunction   *float64 `json:"renalFunction,omitempty"`
	HepaticFunction string   `json:"hepaticFunction,omitempty"`
	Pregnant        bool     `json:"pregnant,omitempty"`
}

// Attributes projects the context onto the fields a dosage check needs.
func (p PatientContext) Attributes() PatientAttributes {
	return PatientAttributes{
		WeightKg:  p.WeightKg,
		Age:       p.Age,
		Condition: p.Condition,
	}
}

// SuggestionRequest is the input of a decision support call.
type SuggestionRequest struct {
	Diagnosis string         `json:"diagnosis"`
	Symptoms  []string       `json:"symptoms"`
	Patient   PatientContext `json:"patient"`
}
