// Package validation checks catalog records at load time and user supplied
// strings at the request boundary.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/textnorm"
)

const (
	maxNameLength      = 200
	maxDiagnosisLength = 500
	maxSymptomLength   = 200
	maxSymptoms        = 30
	maxCurrentMeds     = 50
	maxAge             = 130
	maxWeightKg        = 700
)

// Pre-compiled regex patterns, reused for all validations
var (
	// Lookup input: letters of any script, digits and the punctuation found in
	// drug names and condition codes.
	inputRegex = regexp.MustCompile(`^[\p{L}\p{M}0-9\s\-\.\+'/(),%]+$`)

	codeRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.:\-]*$`)

	// Markup and injection fragments rejected in any free text
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "eval(", "expression(", "@import",
		"union select", "drop table", "delete from", "insert into",
		"/*", "*/", "xp_", "exec(", "execute(",
		"`", "$(", "${",
		"../", "..\\", "%2e%2e", "file://",
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:",
	}
)

// DataValidatorImpl implements interfaces.RecordValidator
type DataValidatorImpl struct{}

var _ interfaces.RecordValidator = (*DataValidatorImpl)(nil)

// NewDataValidator creates a new validator
func NewDataValidator() *DataValidatorImpl {
	return &DataValidatorImpl{}
}

// ValidateMedication checks that a medication record can be indexed and its
// ranges are usable.
func (v *DataValidatorImpl) ValidateMedication(m *entities.MedicationRecord) error {
	if m == nil {
		return fmt.Errorf("medication cannot be nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("medication %q has an empty id", m.Name)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("medication %s has an empty name", m.ID)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("medication %s name too long: %d characters", m.ID, len(m.Name))
	}

	for i, r := range m.StandardRanges {
		if err := checkBounds(r.Min, r.Max, r.Unit); err != nil {
			return fmt.Errorf("medication %s standard range %d: %w", m.ID, i, err)
		}
	}
	for i, r := range m.TherapeuticRanges {
		if err := checkBounds(r.Min, r.Max, r.Unit); err != nil {
			return fmt.Errorf("medication %s therapeutic range %d: %w", m.ID, i, err)
		}
	}
	for i, in := range m.Interactions {
		if strings.TrimSpace(in.Medication) == "" {
			return fmt.Errorf("medication %s interaction %d has no partner", m.ID, i)
		}
		switch in.Severity {
		case entities.SeverityLow, entities.SeverityModerate, entities.SeverityHigh:
		default:
			return fmt.Errorf("medication %s interaction with %s has invalid severity %q", m.ID, in.Medication, in.Severity)
		}
	}

	return nil
}

func checkBounds(lo, hi float64, unit string) error {
	if lo < 0 || hi < 0 {
		return fmt.Errorf("negative bound")
	}
	if lo > hi {
		return fmt.Errorf("min %g greater than max %g", lo, hi)
	}
	if strings.TrimSpace(unit) == "" {
		return fmt.Errorf("empty unit")
	}
	return nil
}

// ValidateGuideline checks that a guideline can be indexed.
func (v *DataValidatorImpl) ValidateGuideline(g *entities.TreatmentGuideline) error {
	if g == nil {
		return fmt.Errorf("guideline cannot be nil")
	}
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("guideline %q has an empty id", g.Condition)
	}
	if strings.TrimSpace(g.Condition) == "" {
		return fmt.Errorf("guideline %s has an empty condition", g.ID)
	}
	if len(g.FirstLine) == 0 {
		return fmt.Errorf("guideline %s has no first-line options", g.ID)
	}
	return nil
}

// ReportDataQuality collects non-fatal problems across the whole dataset.
func (v *DataValidatorImpl) ReportDataQuality(
	medications []entities.MedicationRecord,
	guidelines []entities.TreatmentGuideline,
) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{}

	ids := make(map[string]bool, len(medications))
	keyOwner := make(map[string]string, len(medications))
	codeOwner := make(map[string]string)

	claim := func(key, owner string) {
		if key == "" {
			return
		}
		if prev, ok := keyOwner[key]; ok && prev != owner {
			report.DuplicateKeys = append(report.DuplicateKeys, fmt.Sprintf("%s (%s, %s)", key, prev, owner))
			return
		}
		keyOwner[key] = owner
	}

	for i := range medications {
		m := &medications[i]
		if err := v.ValidateMedication(m); err != nil {
			report.InvalidMedications = append(report.InvalidMedications, err.Error())
			continue
		}
		if ids[m.ID] {
			report.DuplicateIDs = append(report.DuplicateIDs, m.ID)
		}
		ids[m.ID] = true

		claim(textnorm.Key(m.Name), m.ID)
		if g := textnorm.Key(m.GenericName); g != textnorm.Key(m.Name) {
			claim(g, m.ID)
		}
		for _, brand := range m.BrandNames {
			claim(textnorm.Key(brand), m.ID)
		}
		for _, code := range m.Codes {
			c := strings.ToUpper(strings.TrimSpace(code))
			if prev, ok := codeOwner[c]; ok && prev != m.ID {
				report.DuplicateCodes = append(report.DuplicateCodes, c)
				continue
			}
			codeOwner[c] = m.ID
		}
		if len(m.StandardRanges) == 0 {
			report.MedicationsWithoutRanges++
		}
	}

	for i := range medications {
		for _, in := range medications[i].Interactions {
			if _, ok := keyOwner[textnorm.Key(in.Medication)]; !ok {
				report.DanglingInteractions = append(report.DanglingInteractions,
					medications[i].Name+" -> "+in.Medication)
			}
		}
	}

	for i := range guidelines {
		if err := v.ValidateGuideline(&guidelines[i]); err != nil {
			report.InvalidGuidelines = append(report.InvalidGuidelines, err.Error())
		}
	}

	if len(report.DuplicateIDs) > 0 || len(report.DuplicateKeys) > 0 || len(report.InvalidMedications) > 0 {
		logging.Warn("Catalog data quality issues",
			"invalid_medications", len(report.InvalidMedications),
			"invalid_guidelines", len(report.InvalidGuidelines),
			"duplicate_ids", len(report.DuplicateIDs),
			"duplicate_keys", len(report.DuplicateKeys),
			"duplicate_codes", len(report.DuplicateCodes),
		)
	}

	return report
}

// ValidateInput validates a lookup string such as a medication name or a
// condition.
func (v *DataValidatorImpl) ValidateInput(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fmt.Errorf("input cannot be empty")
	}
	if len(trimmed) < 2 {
		return fmt.Errorf("input too short: minimum 2 characters")
	}
	if len(input) > 100 {
		return fmt.Errorf("input too long: maximum 100 characters")
	}
	if len(strings.Fields(input)) > 8 {
		return fmt.Errorf("query too complex: maximum 8 words allowed")
	}
	if err := checkDangerous(input); err != nil {
		return err
	}
	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters")
	}
	if hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}
	return nil
}

// ValidateCode validates an external code (ICD-10, RxNorm, ATC).
func (v *DataValidatorImpl) ValidateCode(input string) error {
	if len(input) > 32 || !codeRegex.MatchString(strings.TrimSpace(input)) {
		return fmt.Errorf("invalid code %q", input)
	}
	return nil
}

// ValidateRequest validates a decision support request. Free text fields are
// more permissive than lookup input but still bounded.
func (v *DataValidatorImpl) ValidateRequest(req entities.SuggestionRequest) error {
	diagnosis := strings.TrimSpace(req.Diagnosis)
	if diagnosis == "" {
		return fmt.Errorf("diagnosis cannot be empty")
	}
	if len(diagnosis) > maxDiagnosisLength {
		return fmt.Errorf("diagnosis too long: maximum %d characters", maxDiagnosisLength)
	}
	if err := checkDangerous(diagnosis); err != nil {
		return fmt.Errorf("diagnosis: %w", err)
	}

	symptoms := 0
	for _, sym := range req.Symptoms {
		if strings.TrimSpace(sym) != "" {
			symptoms++
		}
	}
	if symptoms == 0 {
		return fmt.Errorf("at least one symptom is required")
	}
	if len(req.Symptoms) > maxSymptoms {
		return fmt.Errorf("too many symptoms: maximum %d", maxSymptoms)
	}
	for _, s := range req.Symptoms {
		if len(s) > maxSymptomLength {
			return fmt.Errorf("symptom too long: maximum %d characters", maxSymptomLength)
		}
		if err := checkDangerous(s); err != nil {
			return fmt.Errorf("symptom: %w", err)
		}
	}

	p := req.Patient
	if p.Age != nil && (*p.Age < 0 || *p.Age > maxAge) {
		return fmt.Errorf("age out of range: %d", *p.Age)
	}
	if p.WeightKg != nil && (*p.WeightKg <= 0 || *p.WeightKg > maxWeightKg) {
		return fmt.Errorf("weight out of range: %g", *p.WeightKg)
	}
	if p.RenalFunction != nil && *p.RenalFunction < 0 {
		return fmt.Errorf("renal function cannot be negative")
	}
	if len(p.CurrentMedications) > maxCurrentMeds {
		return fmt.Errorf("too many current medications: maximum %d", maxCurrentMeds)
	}
	names := make([]string, 0, len(p.CurrentMedications)+len(p.Allergies))
	names = append(names, p.CurrentMedications...)
	names = append(names, p.Allergies...)
	for _, name := range names {
		if len(name) > maxNameLength {
			return fmt.Errorf("medication name too long: maximum %d characters", maxNameLength)
		}
		if err := checkDangerous(name); err != nil {
			return err
		}
	}

	return nil
}

func checkDangerous(input string) error {
	lower := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}
	if strings.ContainsRune(input, 0) {
		return fmt.Errorf("input contains invalid characters")
	}
	return nil
}

// hasExcessiveRepetition checks for the same byte repeated more than 10 times
func hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
