// Package decision orchestrates a suggestion request: validate the input,
// obtain a completion, parse it and enrich every suggestion with catalog
// checks. Each invocation runs through the states
// validating -> generating -> parsing -> enriching -> done, or ends in failed.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thiskanishk/healthassist-cds/dosage"
	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/generation"
	"github.com/thiskanishk/healthassist-cds/interactions"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/metrics"
	"github.com/thiskanishk/healthassist-cds/risk"
	"github.com/thiskanishk/healthassist-cds/suggestion"
	"github.com/thiskanishk/healthassist-cds/textnorm"
	"github.com/thiskanishk/healthassist-cds/validation"
)

const defaultWorkers = 4

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the number of suggestions enriched concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithGenerationOptions sets the options of every completion call.
func WithGenerationOptions(opts interfaces.GenerationOptions) Option {
	return func(s *Service) { s.genOpts = opts }
}

// WithObserver registers a state transition hook.
func WithObserver(o StateObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithValidator replaces the request validator.
func WithValidator(v interfaces.RecordValidator) Option {
	return func(s *Service) { s.validator = v }
}

// Service implements interfaces.DecisionSupport.
type Service struct {
	catalog   interfaces.MedicationCatalog
	generator interfaces.TextGenerationClient
	validator interfaces.RecordValidator
	genOpts   interfaces.GenerationOptions
	workers   int
	observer  StateObserver
}

var _ interfaces.DecisionSupport = (*Service)(nil)

// NewService wires the orchestrator to its collaborators.
func NewService(catalog interfaces.MedicationCatalog, generator interfaces.TextGenerationClient, opts ...Option) *Service {
	s := &Service{
		catalog:   catalog,
		generator: generator,
		validator: validation.NewDataValidator(),
		genOpts:   interfaces.GenerationOptions{Timeout: 30 * time.Second},
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest runs one invocation. Errors are ErrInvalidInput (wrapped) or
// *GenerationError. Enrichment failures never surface; the affected
// suggestion is marked with an unknown interaction status instead.
func (s *Service) Suggest(ctx context.Context, req entities.SuggestionRequest) ([]entities.PrescriptionSuggestion, error) {
	t := &tracker{requestID: uuid.NewString(), observer: s.observer, log: logging.Debug}

	t.to(StateValidating)
	if err := s.validator.ValidateRequest(req); err != nil {
		t.to(StateFailed)
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	t.to(StateGenerating)
	raw, err := s.generate(ctx, req)
	if err != nil {
		t.to(StateFailed)
		logging.Warn("Suggestion generation failed",
			"request_id", t.requestID,
			"kind", string(err.Kind),
			"error", err.Err,
		)
		return nil, err
	}

	t.to(StateParsing)
	result := suggestion.Parse(raw)
	if result.Unparseable {
		metrics.SuggestionParses.WithLabelValues("sentinel").Inc()
		logging.Info("Completion could not be parsed, returning sentinel",
			"request_id", t.requestID,
			"reason", result.Reason,
		)
		t.to(StateDone)
		return result.List(), nil
	}
	metrics.SuggestionParses.WithLabelValues("parsed").Inc()

	t.to(StateEnriching)
	enriched := s.enrichAll(ctx, t.requestID, result.Suggestions, req)

	t.to(StateDone)
	return enriched, nil
}

func (s *Service) generate(ctx context.Context, req entities.SuggestionRequest) (string, *GenerationError) {
	var guideline *entities.TreatmentGuideline
	if g, err := s.catalog.FindGuideline(ctx, req.Diagnosis); err != nil {
		logging.Warn("Guideline lookup failed, prompting without guideline", "error", err)
	} else {
		guideline = g
	}

	if s.genOpts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.genOpts.Timeout)
		defer cancel()
	}

	raw, err := s.generator.Complete(ctx, BuildPrompt(req, guideline), s.genOpts)
	if err != nil {
		kind := generation.KindOf(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = generation.KindTimeout
		}
		return "", &GenerationError{Kind: kind, Err: err}
	}
	if strings.TrimSpace(raw) == "" {
		return "", &GenerationError{Kind: generation.KindEmpty, Err: errors.New("empty completion")}
	}
	return raw, nil
}

// enrichAll enriches suggestions concurrently and returns them in input order.
func (s *Service) enrichAll(ctx context.Context, requestID string, in []entities.PrescriptionSuggestion, req entities.SuggestionRequest) []entities.PrescriptionSuggestion {
	out := make([]entities.PrescriptionSuggestion, len(in))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i := range in {
		g.Go(func() error {
			enriched, err := s.enrichSafely(ctx, in[i], req)
			if err != nil {
				metrics.EnrichmentFailures.Inc()
				logging.Error("Suggestion enrichment failed",
					"request_id", requestID,
					"medication", in[i].Medication,
					"error", err,
				)
				enriched = in[i]
				enriched.InteractionRisks = []entities.InteractionFinding{}
				enriched.InteractionStatus = entities.InteractionStatusUnknown
			}
			out[i] = enriched
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Service) enrichSafely(ctx context.Context, sug entities.PrescriptionSuggestion, req entities.SuggestionRequest) (out entities.PrescriptionSuggestion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enrichment panic: %v", r)
		}
	}()
	return s.enrich(ctx, sug, req)
}

// enrich attaches interaction findings, the dosage range check, adverse risks
// and catalog warnings to one suggestion.
func (s *Service) enrich(ctx context.Context, sug entities.PrescriptionSuggestion, req entities.SuggestionRequest) (entities.PrescriptionSuggestion, error) {
	record, err := s.catalog.FindByNameOrAlias(ctx, sug.Medication)
	if err != nil {
		return sug, fmt.Errorf("resolve %q: %w", sug.Medication, err)
	}

	p := req.Patient
	sug.InteractionStatus = entities.InteractionStatusChecked
	if record == nil {
		// An unknown medication cannot be asserted to interact.
		sug.InteractionRisks = []entities.InteractionFinding{}
		return sug, nil
	}

	sug.CatalogID = record.ID
	sug.InteractionRisks = interactions.MatchRecord(record, p.CurrentMedications)

	for _, f := range sug.InteractionRisks {
		sug.Warnings = appendUnique(sug.Warnings,
			fmt.Sprintf("%s interaction with %s: %s", f.Severity, f.Medication, f.Description))
	}

	if len(record.StandardRanges) > 0 {
		attrs := p.Attributes()
		if attrs.Condition == "" {
			attrs.Condition = req.Diagnosis
		}
		check := dosage.CheckDosage(record, sug.Dosage, attrs)
		sug.DosageCheck = &check
		if !check.InRange {
			sug.Warnings = appendUnique(sug.Warnings, "Dosage check: "+check.Message)
		}
	}

	sug.Risks = risk.EstimateRecord(record, risk.FactorsFor(p))

	for _, c := range record.Contraindications {
		sug.Contraindications = appendUnique(sug.Contraindications, c)
	}
	for _, w := range patientWarnings(record, p) {
		sug.Warnings = appendUnique(sug.Warnings, w)
	}

	return sug, nil
}

// patientWarnings derives catalog warnings that depend on the patient.
func patientWarnings(m *entities.MedicationRecord, p entities.PatientContext) []string {
	var out []string

	for _, allergy := range p.Allergies {
		a := textnorm.Key(allergy)
		if a == "" {
			continue
		}
		if textnorm.Equal(a, m.Name) || textnorm.Equal(a, m.GenericName) || matchesClass(m.DrugClasses, allergy) {
			out = append(out, fmt.Sprintf("Patient reports allergy to %s", allergy))
		}
	}

	if p.Pregnant && strings.EqualFold(m.PregnancyCategory, "X") {
		out = append(out, "Contraindicated in pregnancy (category X)")
	} else if p.Pregnant && strings.EqualFold(m.PregnancyCategory, "D") {
		out = append(out, "Evidence of fetal risk in pregnancy (category D)")
	}

	if p.Age != nil && *p.Age > 65 && m.BeersCriteria != nil && m.BeersCriteria.IsInappropriate {
		out = append(out, fmt.Sprintf("Beers criteria: %s. %s", m.BeersCriteria.Reason, m.BeersCriteria.Recommendation))
	}

	if p.Age != nil && *p.Age < 18 && m.PediatricUse != nil {
		switch {
		case !m.PediatricUse.IsSafe:
			out = append(out, "Safety not established in pediatric patients")
		case *p.Age < m.PediatricUse.MinimumAge:
			out = append(out, fmt.Sprintf("Not recommended under age %d", m.PediatricUse.MinimumAge))
		}
	}

	if p.RenalFunction != nil && *p.RenalFunction < 60 && m.RequiresRenalAdjustment() && m.RenalAdjustment.Guideline != "" {
		out = append(out, "Renal dose adjustment: "+m.RenalAdjustment.Guideline)
	}
	if strings.EqualFold(p.HepaticFunction, entities.HepaticImpaired) && m.RequiresHepaticAdjustment() && m.HepaticAdjustment.Guideline != "" {
		out = append(out, "Hepatic dose adjustment: "+m.HepaticAdjustment.Guideline)
	}

	return out
}

// matchesClass reports whether allergy names one of classes, so "penicillin"
// matches "Penicillin antibiotic".
func matchesClass(classes []string, allergy string) bool {
	for _, c := range classes {
		if textnorm.Contains(c, allergy) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if textnorm.Equal(existing, item) {
			return list
		}
	}
	return append(list, item)
}
