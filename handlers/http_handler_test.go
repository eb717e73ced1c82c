package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/thiskanishk/healthassist-cds/catalog"
	"github.com/thiskanishk/healthassist-cds/decision"
	"github.com/thiskanishk/healthassist-cds/dosage"
	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/generation"
	"github.com/thiskanishk/healthassist-cds/health"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/validation"
)

func init() {
	logging.InitLogger("")
}

type stubDecision struct {
	suggestions []entities.PrescriptionSuggestion
	err         error
}

func (s *stubDecision) Suggest(ctx context.Context, req entities.SuggestionRequest) ([]entities.PrescriptionSuggestion, error) {
	return s.suggestions, s.err
}

type failingStore struct{}

func (failingStore) LoadMedications(ctx context.Context) ([]entities.MedicationRecord, error) {
	return nil, errors.New("store down")
}

func (failingStore) LoadGuidelines(ctx context.Context) ([]entities.TreatmentGuideline, error) {
	return nil, errors.New("store down")
}

func newTestRouter(t *testing.T, ds *stubDecision) (http.Handler, *catalog.Catalog) {
	t.Helper()
	cat := catalog.New(nil)
	h := NewHTTPHandler(cat, ds, validation.NewDataValidator(), health.NewHealthChecker(cat))
	return routes(h), cat
}

func routes(h *HTTPHandlerImpl) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/suggestions", h.Suggest)
	r.Get("/v1/medications/{name}", h.FindMedication)
	r.Get("/v1/medications/{name}/interactions", h.MedicationInteractions)
	r.Post("/v1/medications/interactions", h.PairwiseInteractions)
	r.Post("/v1/dosage/check", h.CheckDosage)
	r.Post("/v1/dosage/therapeutic", h.CheckTherapeuticLevel)
	r.Post("/v1/risks", h.EstimateRisks)
	r.Get("/v1/guidelines/{condition}", h.FindGuideline)
	r.Get("/health", h.HealthCheck)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestSuggestStatusMapping(t *testing.T) {
	body := `{"diagnosis":"Hypertension","patient":{"age":54}}`

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"success", nil, http.StatusOK, ""},
		{"invalid input", decision.ErrInvalidInput, http.StatusBadRequest, ""},
		{"quota", &decision.GenerationError{Kind: generation.KindQuota, Err: errors.New("429")}, http.StatusTooManyRequests, "quota"},
		{"circuit open", &decision.GenerationError{Kind: generation.KindCircuitOpen, Err: errors.New("open")}, http.StatusServiceUnavailable, "circuit_open"},
		{"timeout", &decision.GenerationError{Kind: generation.KindTimeout, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "timeout"},
		{"upstream", &decision.GenerationError{Kind: generation.KindUpstream, Err: errors.New("500")}, http.StatusBadGateway, "upstream"},
		{"empty", &decision.GenerationError{Kind: generation.KindEmpty, Err: errors.New("blank")}, http.StatusBadGateway, "empty"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &stubDecision{err: tt.err}
			if tt.err == nil {
				ds.suggestions = []entities.PrescriptionSuggestion{{Medication: "Lisinopril", Dosage: "10 mg"}}
			}
			router, _ := newTestRouter(t, ds)

			rr := do(t, router, http.MethodPost, "/v1/suggestions", body)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.err == nil {
				got := decode[struct {
					Suggestions []entities.PrescriptionSuggestion `json:"suggestions"`
					Count       int                               `json:"count"`
				}](t, rr)
				if got.Count != 1 || got.Suggestions[0].Medication != "Lisinopril" {
					t.Errorf("Unexpected body: %+v", got)
				}
				return
			}
			resp := decode[ErrorResponse](t, rr)
			if resp.Kind != tt.wantKind {
				t.Errorf("Expected kind %q, got %q", tt.wantKind, resp.Kind)
			}
			if resp.ErrorID == "" {
				t.Error("Expected an error id")
			}
		})
	}
}

func TestSuggestRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})
	for _, body := range []string{"", "{", `{"diagnosis":"x"} {}`} {
		rr := do(t, router, http.MethodPost, "/v1/suggestions", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestSuggestRetryAfterOnQuota(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{
		err: &decision.GenerationError{Kind: generation.KindQuota, Err: errors.New("429")},
	})
	rr := do(t, router, http.MethodPost, "/v1/suggestions", `{"diagnosis":"Hypertension"}`)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on quota errors")
	}
}

func TestFindMedication(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantID   string
	}{
		{"by name", "/v1/medications/Lisinopril", http.StatusOK, "med-lisinopril"},
		{"case insensitive", "/v1/medications/warfarin", http.StatusOK, "med-warfarin"},
		{"unknown", "/v1/medications/Unknownium", http.StatusNotFound, ""},
		{"dangerous input", "/v1/medications/%3Cscript%3E", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodGet, tt.path, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantID != "" {
				if got := decode[entities.MedicationRecord](t, rr); got.ID != tt.wantID {
					t.Errorf("Expected id %s, got %s", tt.wantID, got.ID)
				}
			}
		})
	}
}

func TestFindMedicationCatalogUnavailable(t *testing.T) {
	cat := catalog.New(failingStore{}, catalog.WithFallback(func() (*entities.CatalogDataset, error) {
		return nil, errors.New("no fallback")
	}))
	h := NewHTTPHandler(cat, &stubDecision{}, validation.NewDataValidator(), health.NewHealthChecker(cat))

	rr := do(t, routes(h), http.MethodGet, "/v1/medications/Lisinopril", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[ErrorResponse](t, rr); got.Kind != "catalog_unavailable" {
		t.Errorf("Expected kind catalog_unavailable, got %q", got.Kind)
	}
}

func TestMedicationInteractions(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	rr := do(t, router, http.MethodGet, "/v1/medications/Lisinopril/interactions?current=Spironolactone,%20Metformin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[struct {
		Current      []string                      `json:"current"`
		Interactions []entities.InteractionFinding `json:"interactions"`
	}](t, rr)
	if len(got.Current) != 2 || got.Current[1] != "Metformin" {
		t.Errorf("Expected trimmed current list, got %v", got.Current)
	}
	if len(got.Interactions) != 1 {
		t.Fatalf("Expected 1 interaction, got %d", len(got.Interactions))
	}

	rr = do(t, router, http.MethodGet, "/v1/medications/Lisinopril/interactions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 without current list, got %d", rr.Code)
	}
	if got := decode[struct {
		Interactions []entities.InteractionFinding `json:"interactions"`
	}](t, rr); len(got.Interactions) != 0 {
		t.Errorf("Expected no interactions, got %v", got.Interactions)
	}
}

func TestPairwiseInteractions(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	rr := do(t, router, http.MethodPost, "/v1/medications/interactions", `{"ids":["med-warfarin","med-aspirin"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[entities.PairwiseInteractionResult](t, rr)
	if !got.HasPotentialInteractions || len(got.Medications) != 2 {
		t.Errorf("Expected warfarin/aspirin interaction, got %+v", got)
	}

	ids := make([]string, maxPairwiseIDs+1)
	for i := range ids {
		ids[i] = "med-warfarin"
	}
	payload, _ := json.Marshal(pairwiseRequest{IDs: ids})
	rr = do(t, router, http.MethodPost, "/v1/medications/interactions", string(payload))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for too many ids, got %d", rr.Code)
	}
}

func TestCheckDosage(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantInRange bool
	}{
		{"in range", `{"medication":"Lisinopril","dosage":"10 mg once daily","patient":{"age":50}}`, http.StatusOK, true},
		{"above range", `{"medication":"Lisinopril","dosage":"80 mg once daily","patient":{"age":50}}`, http.StatusOK, false},
		{"unknown medication", `{"medication":"Unknownium","dosage":"10 mg"}`, http.StatusNotFound, false},
		{"missing dosage", `{"medication":"Lisinopril","dosage":" "}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/v1/dosage/check", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if rr.Code == http.StatusOK {
				if got := decode[entities.DosageCheckResult](t, rr); got.InRange != tt.wantInRange {
					t.Errorf("Expected inRange %v, got %+v", tt.wantInRange, got)
				}
			}
		})
	}
}

func TestCheckTherapeuticLevel(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStatus string
	}{
		{"digoxin in range", `{"medication":"Digoxin","level":1.2,"unit":"ng/mL"}`, http.StatusOK, dosage.LevelInRange},
		{"vancomycin peak above", `{"medication":"Vancomycin","level":55,"unit":"mcg/mL","timing":"peak"}`, http.StatusOK, dosage.LevelAbove},
		{"no range", `{"medication":"Lisinopril","level":3,"unit":"ng/mL"}`, http.StatusOK, dosage.LevelUnknown},
		{"negative level", `{"medication":"Digoxin","level":-1,"unit":"ng/mL"}`, http.StatusBadRequest, ""},
		{"missing unit", `{"medication":"Digoxin","level":1}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/v1/dosage/therapeutic", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantStatus != "" {
				if got := decode[entities.TherapeuticCheckResult](t, rr); got.Status != tt.wantStatus {
					t.Errorf("Expected status %q, got %+v", tt.wantStatus, got)
				}
			}
		})
	}
}

func TestEstimateRisks(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	rr := do(t, router, http.MethodPost, "/v1/risks",
		`{"medications":["Lisinopril","Unknownium"],"patient":{"age":72,"renalFunction":25}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[struct {
		Risks      []entities.MedicationRisk `json:"risks"`
		Unresolved []string                  `json:"unresolved"`
	}](t, rr)
	if len(got.Risks) != 1 || got.Risks[0].MedicationName != "Lisinopril" {
		t.Fatalf("Expected risks for Lisinopril only, got %+v", got.Risks)
	}
	if len(got.Risks[0].Risks) == 0 {
		t.Error("Expected at least one risk for an elderly renal patient")
	}
	if len(got.Unresolved) != 1 || got.Unresolved[0] != "Unknownium" {
		t.Errorf("Expected Unknownium unresolved, got %v", got.Unresolved)
	}

	rr = do(t, router, http.MethodPost, "/v1/risks", `{"medications":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty list, got %d", rr.Code)
	}
}

func TestFindGuideline(t *testing.T) {
	router, _ := newTestRouter(t, &stubDecision{})

	rr := do(t, router, http.MethodGet, "/v1/guidelines/hypertension", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[entities.TreatmentGuideline](t, rr); got.ID != "gl-hypertension" {
		t.Errorf("Expected gl-hypertension, got %s", got.ID)
	}

	rr = do(t, router, http.MethodGet, "/v1/guidelines/migraine", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	router, cat := newTestRouter(t, &stubDecision{})

	rr := do(t, router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 before the catalog loads, got %d", rr.Code)
	}

	if _, err := cat.FindByNameOrAlias(context.Background(), "Lisinopril"); err != nil {
		t.Fatalf("catalog load failed: %v", err)
	}
	rr = do(t, router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on fallback data, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[HealthResponse](t, rr)
	if got.Status != health.StatusDegraded {
		t.Errorf("Expected degraded status, got %s", got.Status)
	}
}

func TestRespondWithJSONCompression(t *testing.T) {
	payload := map[string]string{"text": strings.Repeat("a", 2*compressionThreshold)}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rr := httptest.NewRecorder()
	RespondWithJSON(rr, req, http.StatusOK, payload)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("Expected gzip encoding for a large body")
	}
	zr, err := gzip.NewReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil || got["text"] != payload["text"] {
		t.Error("Decompressed body does not match payload")
	}

	small := httptest.NewRecorder()
	RespondWithJSON(small, req, http.StatusOK, map[string]string{"ok": "yes"})
	if small.Header().Get("Content-Encoding") != "" {
		t.Error("Small bodies should not be compressed")
	}
}
