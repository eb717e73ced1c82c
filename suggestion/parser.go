// Package suggestion turns free-form completion text into prescription
// suggestions. Parsing never fails: text without usable structure produces an
// unparseable result that renders as a single sentinel suggestion.
package suggestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
)

// Header marks the start of the medication section in a completion.
const Header = "Primary medication recommendations"

// Reasons reported on unparseable results
const (
	ReasonNoHeader   = "missing medication recommendations header"
	ReasonNoBlocks   = "no medication could be extracted"
	ReasonEmptyInput = "empty completion"
)

var (
	headerRegex     = regexp.MustCompile(`(?i)primary\s+medication\s+recommendations?\s*:?`)
	blockSplitRegex = regexp.MustCompile(`\n[ \t]*\n`)
	listMarkerRegex = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•#]+)\s*`)

	// "<medication> <dosage-info>", where the details start with a digit
	nameDetailRegex = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9'\-/]*(?:\s+[A-Za-z][A-Za-z0-9'\-/]*)*?)\s*[:\-–,(]?\s*(\d.*)$`)
	// "<medication>: <details>" for a single-word name
	nameLabelRegex = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9'\-/]*)\s*(?::|\s-|–)\s*(\S.*)$`)

	dosageRegex = regexp.MustCompile(`(?i)^\d+(?:\.\d+)?(?:\s*(?:-|to)\s*\d+(?:\.\d+)?)?\s*(?:mcg|µg|mg|g|ml|l|iu|units?|meq|mmol|tablets?|caps(?:ules?)?|puffs?|drops?|sprays?)(?:/kg)?\b`)

	frequencyLabelRegex  = labelRegex(`frequency`)
	frequencyPhraseRegex = regexp.MustCompile(`(?i)\b(?:\d+|once|twice|one|two|three|four|five|six)\s+times?\s+(?:a|per)\s+day\b`)

	durationLabelRegex  = labelRegex(`duration`)
	durationPhraseRegex = regexp.MustCompile(`(?i)\bfor\s+((?:\d+(?:\s*(?:-|to)\s*\d+)?|a|one|two|three|four|five|six|seven|ten|fourteen)\s+(?:days?|weeks?|months?|years?))\b`)

	instructionsLabelRegex      = labelRegex(`instructions?`)
	warningsLabelRegex          = labelRegex(`warnings?|precautions?`)
	contraindicationsLabelRegex = labelRegex(`contraindications?`)
	sideEffectsLabelRegex       = labelRegex(`side[\s\-]?effects?|adverse\s+effects?`)
	alternativesLabelRegex      = labelRegex(`alternatives?|alternative\s+medications?`)

	bulletRegex = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)

	// Words that start a labelled field line, never a medication name
	fieldWords = map[string]bool{
		"frequency": true, "duration": true, "instruction": true, "instructions": true,
		"warning": true, "warnings": true, "precaution": true, "precautions": true,
		"side": true, "adverse": true, "alternative": true, "alternatives": true,
		"contraindication": true, "contraindications": true, "dosage": true, "dose": true,
		"note": true, "notes": true, "monitoring": true, "route": true,
	}
)

// labelRegex matches "<label>: value" at the start of a line, tolerating list
// markers and bold markup.
func labelRegex(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*(?:[-*•][ \t]*)?\**(?:` + label + `)\**[ \t]*:\**[ \t]*(.*)$`)
}

// Parse extracts suggestions from raw completion text.
func Parse(raw string) (result entities.SuggestionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = entities.SuggestionResult{Unparseable: true, Reason: fmt.Sprintf("parser failure: %v", r)}
		}
	}()

	if strings.TrimSpace(raw) == "" {
		return entities.SuggestionResult{Unparseable: true, Reason: ReasonEmptyInput}
	}

	section, ok := SplitSection(raw)
	if !ok {
		return entities.SuggestionResult{Unparseable: true, Reason: ReasonNoHeader}
	}

	var suggestions []entities.PrescriptionSuggestion
	for _, block := range SplitBlocks(section) {
		if s, ok := ParseBlock(block); ok {
			suggestions = append(suggestions, s)
		}
	}

	if len(suggestions) == 0 {
		return entities.SuggestionResult{Unparseable: true, Reason: ReasonNoBlocks}
	}
	return entities.SuggestionResult{Suggestions: suggestions}
}

// ParseList is Parse followed by SuggestionResult.List.
func ParseList(raw string) []entities.PrescriptionSuggestion {
	return Parse(raw).List()
}

// SplitSection returns the text after the first recommendations header.
func SplitSection(raw string) (string, bool) {
	loc := headerRegex.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	return raw[loc[1]:], true
}

// SplitBlocks splits on blank lines and drops empty blocks.
func SplitBlocks(section string) []string {
	normalized := strings.ReplaceAll(section, "\r\n", "\n")
	parts := blockSplitRegex.Split(normalized, -1)
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			blocks = append(blocks, p)
		}
	}
	return blocks
}

// ParseBlock builds one suggestion from a block. ok is false when the first
// line does not name a medication.
func ParseBlock(block string) (entities.PrescriptionSuggestion, bool) {
	lines := strings.SplitN(block, "\n", 2)
	name, detail, ok := ExtractNameAndDetail(lines[0])
	if !ok {
		return entities.PrescriptionSuggestion{}, false
	}

	return entities.PrescriptionSuggestion{
		Medication:        name,
		Dosage:            ExtractDosage(detail),
		Frequency:         ExtractFrequency(block),
		Duration:          ExtractDuration(block),
		Instructions:      ExtractInstructions(block),
		Warnings:          ExtractWarnings(block),
		Contraindications: ExtractContraindications(block),
		SideEffects:       ExtractSideEffects(block),
		Alternatives:      ExtractAlternatives(block),
		InteractionRisks:  []entities.InteractionFinding{},
		InteractionStatus: entities.InteractionStatusNotChecked,
	}, true
}

// ExtractNameAndDetail splits "<medication> <dosage-info>".
func ExtractNameAndDetail(line string) (name, detail string, ok bool) {
	line = strings.TrimSpace(listMarkerRegex.ReplaceAllString(line, ""))
	line = strings.NewReplacer("**", "", "__", "").Replace(line)
	line = strings.TrimSpace(line)

	m := nameDetailRegex.FindStringSubmatch(line)
	if m == nil {
		m = nameLabelRegex.FindStringSubmatch(line)
	}
	if m == nil {
		return "", "", false
	}

	name = strings.TrimSpace(m[1])
	detail = strings.TrimSpace(m[2])
	if name == "" {
		return "", "", false
	}
	first := strings.ToLower(strings.Fields(name)[0])
	if fieldWords[first] {
		return "", "", false
	}
	return name, detail, true
}

// ExtractDosage returns the number+unit phrase that detail starts with, or
// detail itself when it does not start with one.
func ExtractDosage(detail string) string {
	detail = strings.TrimSpace(detail)
	if d := dosageRegex.FindString(detail); d != "" {
		return d
	}
	return detail
}

// ExtractFrequency reads a "frequency:" label or an "N times a day" phrase.
func ExtractFrequency(block string) string {
	if v := labelValue(frequencyLabelRegex, block); v != "" {
		return v
	}
	if p := frequencyPhraseRegex.FindString(block); p != "" {
		return p
	}
	return entities.DefaultDirection
}

// ExtractDuration reads a "duration:" label or a "for N days" phrase.
func ExtractDuration(block string) string {
	if v := labelValue(durationLabelRegex, block); v != "" {
		return v
	}
	if m := durationPhraseRegex.FindStringSubmatch(block); m != nil {
		return m[1]
	}
	return entities.DefaultDirection
}

// ExtractInstructions reads an "instructions:" label, or "".
func ExtractInstructions(block string) string {
	return labelValue(instructionsLabelRegex, block)
}

// ExtractWarnings reads a "warnings:" list.
func ExtractWarnings(block string) []string {
	return labelList(warningsLabelRegex, block)
}

// ExtractContraindications reads a "contraindications:" list.
func ExtractContraindications(block string) []string {
	return labelList(contraindicationsLabelRegex, block)
}

// ExtractSideEffects reads a "side effects:" list.
func ExtractSideEffects(block string) []string {
	return labelList(sideEffectsLabelRegex, block)
}

// ExtractAlternatives reads an "alternatives:" list.
func ExtractAlternatives(block string) []string {
	return labelList(alternativesLabelRegex, block)
}

func labelValue(re *regexp.Regexp, block string) string {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return cleanValue(m[1])
}

// labelList returns the items of a labelled list: inline items separated by
// semicolons or commas, followed by any bullet lines directly under the label.
func labelList(re *regexp.Regexp, block string) []string {
	items := []string{}

	loc := re.FindStringSubmatchIndex(block)
	if loc == nil {
		return items
	}

	inline := cleanValue(block[loc[2]:loc[3]])
	if inline != "" {
		items = append(items, splitItems(inline)...)
	}

	rest := block[loc[1]:]
	for _, line := range strings.Split(rest, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := bulletRegex.FindStringSubmatch(line)
		if m == nil || isLabelLine(m[1]) {
			break
		}
		if item := cleanValue(m[1]); item != "" {
			items = append(items, item)
		}
	}

	return items
}

func isLabelLine(s string) bool {
	s = strings.TrimLeft(s, "* ")
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return false
	}
	fields := strings.Fields(strings.ToLower(s[:i]))
	return len(fields) > 0 && fieldWords[fields[0]]
}

func splitItems(s string) []string {
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := cleanValue(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cleanValue(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	return strings.Trim(strings.TrimSpace(s), " .")
}
