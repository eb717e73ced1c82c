// Package interfaces defines the contracts between the decision support core
// and its collaborators, so that stores, caches and the text generation
// backend can be swapped and mocked.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/thiskanishk/healthassist-cds/entities"
)

// DataQualityReport summarises problems found while loading catalog data.
type DataQualityReport struct {
	InvalidMedications       []string // ids or names of dropped records, with reason
	InvalidGuidelines        []string
	DuplicateIDs             []string
	DuplicateKeys            []string // name/alias keys claimed by more than one record
	DuplicateCodes           []string
	MedicationsWithoutRanges int
	DanglingInteractions     []string // interaction partners not present in the catalog
}

// CatalogStore is the backing record store of the medication catalog.
type CatalogStore interface {
	LoadMedications(ctx context.Context) ([]entities.MedicationRecord, error)
	LoadGuidelines(ctx context.Context) ([]entities.TreatmentGuideline, error)
}

// Cache is an optional key/value store used to skip backing-store loads on
// warm start. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GenerationOptions tunes a single completion call.
type GenerationOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// TextGenerationClient is the opaque, fallible completion backend. Its output
// carries no structural guarantee.
type TextGenerationClient interface {
	Complete(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}

// MedicationCatalog resolves medications and guidelines. Errors are only
// returned when the catalog could not be initialised at all.
type MedicationCatalog interface {
	FindByNameOrAlias(ctx context.Context, query string) (*entities.MedicationRecord, error)
	FindByID(ctx context.Context, id string) (*entities.MedicationRecord, error)
	FindByCode(ctx context.Context, code string) (*entities.MedicationRecord, error)
	FindGuideline(ctx context.Context, conditionOrCode string) (*entities.TreatmentGuideline, error)
}

// CatalogStatus describes where the catalog data came from.
type CatalogStatus struct {
	Initialized     bool
	Source          string
	Degraded        bool
	MedicationCount int
	GuidelineCount  int
	LastUpdated     time.Time
	Refreshing      bool
}

// CatalogStatusProvider exposes the catalog's load state, including the
// degraded (fallback dataset) signal.
type CatalogStatusProvider interface {
	Status() CatalogStatus
}

// DecisionSupport is the single entry point used by request handlers.
type DecisionSupport interface {
	Suggest(ctx context.Context, req entities.SuggestionRequest) ([]entities.PrescriptionSuggestion, error)
}

// Scheduler manages periodic catalog refreshes.
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker reports service health.
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)
	CalculateNextUpdate() time.Time
}

// HTTPHandler serves the decision support endpoints.
type HTTPHandler interface {
	Suggest(w http.ResponseWriter, r *http.Request)
	FindMedication(w http.ResponseWriter, r *http.Request)
	MedicationInteractions(w http.ResponseWriter, r *http.Request)
	PairwiseInteractions(w http.ResponseWriter, r *http.Request)
	CheckDosage(w http.ResponseWriter, r *http.Request)
	CheckTherapeuticLevel(w http.ResponseWriter, r *http.Request)
	EstimateRisks(w http.ResponseWriter, r *http.Request)
	FindGuideline(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// RecordValidator validates records at the catalog load boundary and user
// supplied strings at the request boundary.
type RecordValidator interface {
	ValidateMedication(m *entities.MedicationRecord) error
	ValidateGuideline(g *entities.TreatmentGuideline) error
	ReportDataQuality(medications []entities.MedicationRecord, guidelines []entities.TreatmentGuideline) *DataQualityReport
	ValidateInput(input string) error
	ValidateRequest(req entities.SuggestionRequest) error
}
