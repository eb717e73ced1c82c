package entities

// Severity levels used by interaction records.
const (
	SeverityHigh     = "high"
	SeverityModerate = "moderate"
	SeverityLow      = "low"
)

// MedicationRecord is a catalog entry. Name and BrandNames are distinct,
// case-insensitive lookup keys that all resolve to ID.
type MedicationRecord struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	GenericName          string              `json:"genericName"`
	BrandNames           []string            `json:"brandNames"`
	Codes                []string            `json:"codes,omitempty"`
	DrugClasses          []string            `json:"drugClasses"`
	Indications          []string            `json:"indications"`
	Contraindications    []string            `json:"contraindications"`
	Warnings             []string            `json:"warnings"`
	SideEffects          []string            `json:"sideEffects"`
	Interactions         []Interaction       `json:"interactions"`
	DosageGuidelines     []DosageGuideline   `json:"dosageGuidelines"`
	StandardRanges       []DosageRange       `json:"standardRanges,omitempty"`
	TherapeuticRanges    []TherapeuticRange  `json:"therapeuticRanges,omitempty"`
	PediatricUse         *PediatricUse       `json:"pediatricUse,omitempty"`
	PregnancyCategory    string              `json:"pregnancyCategory,omitempty"`
	BeersCriteria        *BeersCriteria      `json:"beersCriteria,omitempty"`
	RenalAdjustment      *OrganAdjustment    `json:"renalAdjustment,omitempty"`
	HepaticAdjustment    *OrganAdjustment    `json:"hepaticAdjustment,omitempty"`
	GeriatricPrecautions []string            `json:"geriatricPrecautions,omitempty"`
	GenderSpecificRisks  map[string][]string `json:"genderSpecificRisks,omitempty"`
}

// Interaction is a declared interaction with another medication, by name.
type Interaction struct {
	Medication    string `json:"medication"`
	Severity      string `json:"severity"`
	Description   string `json:"description"`
	EvidenceLevel string `json:"evidenceLevel"`
}

type DosageGuideline struct {
	AgeGroup     string       `json:"ageGroup,omitempty"`
	WeightRange  *WeightRange `json:"weightRange,omitempty"`
	Condition    string       `json:"condition,omitempty"`
	Route        string       `json:"route"`
	Dosage       string       `json:"dosage"`
	Frequency    string       `json:"frequency"`
	MaxDailyDose string       `json:"maxDailyDose"`
	Notes        string       `json:"notes,omitempty"`
}

type WeightRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit"`
}

type PediatricUse struct {
	IsSafe     bool   `json:"isSafe"`
	MinimumAge int    `json:"minimumAge"`
	Adjustment string `json:"adjustment,omitempty"`
}

type BeersCriteria struct {
	IsInappropriate bool   `json:"isInappropriate"`
	Reason          string `json:"reason"`
	Recommendation  string `json:"recommendation"`
}

// OrganAdjustment describes a renal or hepatic dose adjustment.
type OrganAdjustment struct {
	RequiresAdjustment bool   `json:"requiresAdjustment"`
	Guideline          string `json:"guideline,omitempty"`
}

// RequiresRenalAdjustment reports whether the record is flagged for renal dosing.
func (m *MedicationRecord) RequiresRenalAdjustment() bool {
	return m.RenalAdjustment != nil && m.RenalAdjustment.RequiresAdjustment
}

// RequiresHepaticAdjustment reports whether the record is flagged for hepatic dosing.
func (m *MedicationRecord) RequiresHepaticAdjustment() bool {
	return m.HepaticAdjustment != nil && m.HepaticAdjustment.RequiresAdjustment
}
