package decision

import (
	"fmt"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/suggestion"
)

const responseFormat = `Respond using exactly this format. Start the list with the line "%s:" and separate medications with a blank line:

%s:

1. <Medication name> <dose with unit>
Frequency: <how often>
Duration: <how long>
Instructions: <how to take it>
Warnings: <warning>; <warning>
Side effects: <effect>, <effect>
Alternatives: <medication>, <medication>`

// BuildPrompt renders the completion prompt for a request. guideline may be
// nil.
func BuildPrompt(req entities.SuggestionRequest, guideline *entities.TreatmentGuideline) string {
	var b strings.Builder

	b.WriteString("Suggest appropriate medications for the following case.\n\n")
	fmt.Fprintf(&b, "Diagnosis: %s\n", strings.TrimSpace(req.Diagnosis))

	var symptoms []string
	for _, s := range req.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	if len(symptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(symptoms, ", "))
	}

	b.WriteString("\nPatient:\n")
	p := req.Patient
	if p.Age != nil {
		fmt.Fprintf(&b, "- Age: %d\n", *p.Age)
	}
	if p.WeightKg != nil {
		fmt.Fprintf(&b, "- Weight: %g kg\n", *p.WeightKg)
	}
	if p.Gender != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	}
	if p.Pregnant {
		b.WriteString("- Pregnant: yes\n")
	}
	if p.RenalFunction != nil {
		fmt.Fprintf(&b, "- eGFR: %g mL/min/1.73m2\n", *p.RenalFunction)
	}
	if p.HepaticFunction != "" {
		fmt.Fprintf(&b, "- Hepatic function: %s\n", p.HepaticFunction)
	}
	fmt.Fprintf(&b, "- Current medications: %s\n", joinOrNone(p.CurrentMedications))
	fmt.Fprintf(&b, "- Allergies: %s\n", joinOrNone(p.Allergies))

	if guideline != nil {
		fmt.Fprintf(&b, "\nReference guideline (%s", guideline.Condition)
		if guideline.Source != "" {
			fmt.Fprintf(&b, ", %s", guideline.Source)
		}
		b.WriteString("):\n")
		for _, g := range guideline.FirstLine {
			fmt.Fprintf(&b, "- First line: %s\n", strings.Join(g.Medications, ", "))
		}
		for _, g := range guideline.SecondLine {
			fmt.Fprintf(&b, "- Second line: %s\n", strings.Join(g.Medications, ", "))
		}
	}

	b.WriteString("\nConsider drug interactions, allergies and dose adjustments for this patient.\n\n")
	fmt.Fprintf(&b, responseFormat, suggestion.Header, suggestion.Header)
	b.WriteString("\n")

	return b.String()
}

func joinOrNone(items []string) string {
	var kept []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "none"
	}
	return strings.Join(kept, ", ")
}
