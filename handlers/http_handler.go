// Package handlers exposes the decision support core over HTTP. Handlers are
// thin: they validate input, call one core operation and map its errors to
// status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/thiskanishk/healthassist-cds/catalog"
	"github.com/thiskanishk/healthassist-cds/decision"
	"github.com/thiskanishk/healthassist-cds/dosage"
	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/generation"
	"github.com/thiskanishk/healthassist-cds/interactions"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/risk"
)

const (
	maxCurrentMedications = 50
	maxPairwiseIDs        = 50
	maxRiskMedications    = 20
)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	catalog   interfaces.MedicationCatalog
	matcher   *interactions.Matcher
	decision  interfaces.DecisionSupport
	validator interfaces.RecordValidator
	health    interfaces.HealthChecker
	startTime time.Time
}

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	cat interfaces.MedicationCatalog,
	decisionSupport interfaces.DecisionSupport,
	validator interfaces.RecordValidator,
	health interfaces.HealthChecker,
) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		catalog:   cat,
		matcher:   interactions.NewMatcher(cat),
		decision:  decisionSupport,
		validator: validator,
		health:    health,
		startTime: time.Now(),
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// catalogError answers a failed catalog call.
func catalogError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrCatalogUnavailable) {
		respondWithKind(w, r, http.StatusServiceUnavailable, "Medication catalog is unavailable", "catalog_unavailable", err)
		return
	}
	respondWithKind(w, r, http.StatusInternalServerError, "Catalog lookup failed", "", err)
}

// Suggest handles POST /v1/suggestions
func (h *HTTPHandlerImpl) Suggest(w http.ResponseWriter, r *http.Request) {
	var req entities.SuggestionRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	suggestions, err := h.decision.Suggest(r.Context(), req)
	if err != nil {
		var genErr *decision.GenerationError
		switch {
		case errors.Is(err, decision.ErrInvalidInput):
			RespondWithError(w, r, http.StatusBadRequest, err.Error())
		case errors.As(err, &genErr):
			code := generationStatus(genErr.Kind)
			if genErr.Kind == generation.KindQuota || genErr.Kind == generation.KindCircuitOpen {
				w.Header().Set("Retry-After", "30")
			}
			respondWithKind(w, r, code, "Medication suggestions are temporarily unavailable", string(genErr.Kind), genErr.Err)
		default:
			respondWithKind(w, r, http.StatusInternalServerError, "Suggestion request failed", "", err)
		}
		return
	}

	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

func generationStatus(kind generation.ErrorKind) int {
	switch kind {
	case generation.KindTimeout:
		return http.StatusGatewayTimeout
	case generation.KindQuota:
		return http.StatusTooManyRequests
	case generation.KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// FindMedication handles GET /v1/medications/{name}
func (h *HTTPHandlerImpl) FindMedication(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.validator.ValidateInput(name); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.catalog.FindByNameOrAlias(r.Context(), name)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	if m == nil {
		RespondWithError(w, r, http.StatusNotFound, "Medication not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, m)
}

// MedicationInteractions handles GET /v1/medications/{name}/interactions?current=a,b
func (h *HTTPHandlerImpl) MedicationInteractions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.validator.ValidateInput(name); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var current []string
	for _, c := range strings.Split(r.URL.Query().Get("current"), ",") {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		if err := h.validator.ValidateInput(c); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("current medication %q: %v", c, err))
			return
		}
		current = append(current, c)
	}
	if len(current) > maxCurrentMedications {
		RespondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("Too many current medications (max %d)", maxCurrentMedications))
		return
	}

	findings, err := h.matcher.CheckInteractions(r.Context(), name, current)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"medication":   name,
		"current":      current,
		"interactions": findings,
	})
}

type pairwiseRequest struct {
	IDs []string `json:"ids"`
}

// PairwiseInteractions handles POST /v1/medications/interactions
func (h *HTTPHandlerImpl) PairwiseInteractions(w http.ResponseWriter, r *http.Request) {
	var req pairwiseRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) > maxPairwiseIDs {
		RespondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("Too many ids (max %d)", maxPairwiseIDs))
		return
	}

	result, err := h.matcher.CheckMedicationInteractions(r.Context(), req.IDs)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, result)
}

type dosageRequest struct {
	Medication string                     `json:"medication"`
	Dosage     string                     `json:"dosage"`
	Patient    entities.PatientAttributes `json:"patient"`
}

// CheckDosage handles POST /v1/dosage/check
func (h *HTTPHandlerImpl) CheckDosage(w http.ResponseWriter, r *http.Request) {
	var req dosageRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Dosage) == "" || len(req.Dosage) > 200 {
		RespondWithError(w, r, http.StatusBadRequest, "dosage must be between 1 and 200 characters")
		return
	}

	m, ok := h.resolve(w, r, req.Medication)
	if !ok {
		return
	}
	RespondWithJSON(w, r, http.StatusOK, dosage.CheckDosage(m, req.Dosage, req.Patient))
}

type therapeuticRequest struct {
	Medication string  `json:"medication"`
	Level      float64 `json:"level"`
	Unit       string  `json:"unit"`
	Timing     string  `json:"timing"`
}

// CheckTherapeuticLevel handles POST /v1/dosage/therapeutic
func (h *HTTPHandlerImpl) CheckTherapeuticLevel(w http.ResponseWriter, r *http.Request) {
	var req therapeuticRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if math.IsNaN(req.Level) || req.Level < 0 || strings.TrimSpace(req.Unit) == "" {
		RespondWithError(w, r, http.StatusBadRequest, "level must be a non-negative number with a unit")
		return
	}

	m, ok := h.resolve(w, r, req.Medication)
	if !ok {
		return
	}
	RespondWithJSON(w, r, http.StatusOK, dosage.CheckTherapeuticLevel(m, req.Level, req.Unit, req.Timing))
}

type riskRequest struct {
	Medications []string                `json:"medications"`
	Patient     entities.PatientContext `json:"patient"`
}

// EstimateRisks handles POST /v1/risks
func (h *HTTPHandlerImpl) EstimateRisks(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Medications) == 0 || len(req.Medications) > maxRiskMedications {
		RespondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("between 1 and %d medications are required", maxRiskMedications))
		return
	}

	var records []entities.MedicationRecord
	var unresolved []string
	for _, name := range req.Medications {
		if err := h.validator.ValidateInput(name); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("medication %q: %v", name, err))
			return
		}
		m, err := h.catalog.FindByNameOrAlias(r.Context(), name)
		if err != nil {
			catalogError(w, r, err)
			return
		}
		if m == nil {
			unresolved = append(unresolved, name)
			continue
		}
		records = append(records, *m)
	}

	RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"risks":      risk.Estimate(records, risk.FactorsFor(req.Patient)),
		"unresolved": append([]string{}, unresolved...),
	})
}

// FindGuideline handles GET /v1/guidelines/{condition}
func (h *HTTPHandlerImpl) FindGuideline(w http.ResponseWriter, r *http.Request) {
	condition := chi.URLParam(r, "condition")
	if err := h.validator.ValidateInput(condition); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.catalog.FindGuideline(r.Context(), condition)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	if g == nil {
		RespondWithError(w, r, http.StatusNotFound, "Guideline not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, g)
}

// HealthResponse keeps a stable field order for /health
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
}

// HealthCheck handles GET /health
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, code := h.health.HealthCheck()
	RespondWithJSON(w, r, code, HealthResponse{
		Status:        status,
		UptimeSeconds: math.Round(time.Since(h.startTime).Seconds()),
		Data:          data,
	})
}

// resolve validates name and looks it up, answering 400/404/503 itself.
func (h *HTTPHandlerImpl) resolve(w http.ResponseWriter, r *http.Request, name string) (*entities.MedicationRecord, bool) {
	if err := h.validator.ValidateInput(name); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}
	m, err := h.catalog.FindByNameOrAlias(r.Context(), name)
	if err != nil {
		catalogError(w, r, err)
		return nil, false
	}
	if m == nil {
		RespondWithError(w, r, http.StatusNotFound, "Medication not found")
		return nil, false
	}
	return m, true
}
