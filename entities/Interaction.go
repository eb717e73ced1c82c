package entities

// InteractionFinding is produced per current medication that matches one of
// the candidate's declared interaction partners.
type InteractionFinding struct {
	Medication    string `json:"medication"`
	Severity      string `json:"severity"`
	Description   string `json:"description"`
	EvidenceLevel string `json:"evidenceLevel"`
}

// PairwiseInteractionResult is a presence check over a medication set. It does
// not say which pair interacts.
type PairwiseInteractionResult struct {
	HasPotentialInteractions bool               `json:"hasPotentialInteractions"`
	Medications              []MedicationRecord `json:"medications"`
}
