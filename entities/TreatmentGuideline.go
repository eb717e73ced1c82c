package entities

// Special population tags.
const (
	PopulationPediatric         = "pediatric"
	PopulationGeriatric         = "geriatric"
	PopulationPregnant          = "pregnant"
	PopulationRenalImpairment   = "renal-impairment"
	PopulationHepaticImpairment = "hepatic-impairment"
)

type TreatmentGuideline struct {
	ID                 string              `json:"id"`
	Condition          string              `json:"condition"`
	Aliases            []string            `json:"aliases,omitempty"`
	Codes              []string            `json:"codes"`
	FirstLine          []OptionGroup       `json:"firstLine"`
	SecondLine         []OptionGroup       `json:"secondLine"`
	SpecialPopulations []SpecialPopulation `json:"specialPopulations,omitempty"`
	Source             string              `json:"source"`
	EvidenceLevel      string              `json:"evidenceLevel"`
}

type OptionGroup struct {
	Medications []string `json:"medications"`
	Notes       string   `json:"notes,omitempty"`
}

type SpecialPopulation struct {
	Population      string   `json:"population"`
	Recommendations []string `json:"recommendations"`
	Medications     []string `json:"medications"`
}

// CatalogDataset is the serialized form of a whole catalog, shared by the
// file source, the caches and the bundled fallback data.
type CatalogDataset struct {
	Medications []MedicationRecord   `json:"medications"`
	Guidelines  []TreatmentGuideline `json:"guidelines"`
}
