package catalogsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/thiskanishk/healthassist-cds/catalog"
	"github.com/thiskanishk/healthassist-cds/logging"
)

func init() {
	logging.InitLogger("")
}

const catalogJSON = `{
  "medications": [
    {"id": "med-lisinopril", "name": "Lisinopril", "genericName": "lisinopril", "brandNames": ["Zestril"],
     "interactions": [{"medication": "Spironolactone", "severity": "moderate", "description": "Hyperkalemia"}]},
    {"id": "med-warfarin", "name": "Warfarin", "genericName": "warfarin", "brandNames": ["Coumadin"]}
  ],
  "guidelines": [
    {"id": "gl-hypertension", "condition": "Hypertension", "codes": ["I10"],
     "firstLine": [{"medications": ["Lisinopril"]}]}
  ]
}`

const interactionsTSV = "# medication\tpartner\tseverity\tdescription\tevidence\n" +
	"Warfarin\tAspirin\tmajor\tBleeding risk\thigh\n" +
	"lisinopril\tSPIRONOLACTONE\tmoderate\tduplicate of catalog entry\n" +
	"Lisinopril\tLithium\tmoderate\tLithium toxicity\n" +
	"Unknownium\tAspirin\tlow\tno such medication\n" +
	"Warfarin\tIbuprofen\n" +
	"Warfarin\tMetronidazole\tcatastrophic\tbad severity\n" +
	"\n"

func writeDir(t *testing.T, withTSV bool) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CatalogFile), []byte(catalogJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if withTSV {
		if err := os.WriteFile(filepath.Join(dir, InteractionsFile), []byte(interactionsTSV), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestReadDirMergesInteractions(t *testing.T) {
	ds, err := ReadDir(writeDir(t, true))
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Medications) != 2 || len(ds.Guidelines) != 1 {
		t.Fatalf("unexpected dataset sizes: %d/%d", len(ds.Medications), len(ds.Guidelines))
	}

	lis := ds.Medications[0]
	if len(lis.Interactions) != 2 || lis.Interactions[1].Medication != "Lithium" {
		t.Errorf("expected Lithium merged without duplicating Spironolactone, got %+v", lis.Interactions)
	}

	war := ds.Medications[1]
	if len(war.Interactions) != 1 {
		t.Fatalf("expected one merged warfarin interaction, got %+v", war.Interactions)
	}
	if war.Interactions[0].Severity != "high" || war.Interactions[0].EvidenceLevel != "high" {
		t.Errorf("expected normalized severity and evidence, got %+v", war.Interactions[0])
	}
}

func TestReadDirWithoutTSV(t *testing.T) {
	ds, err := ReadDir(writeDir(t, false))
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Medications[1].Interactions) != 0 {
		t.Errorf("expected no interactions without a TSV file, got %+v", ds.Medications[1].Interactions)
	}
}

func TestReadDirErrors(t *testing.T) {
	if _, err := ReadDir(t.TempDir()); err == nil {
		t.Error("expected error for a missing catalog file")
	}

	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, CatalogFile), []byte("{not json"), 0o644)
	if _, err := ReadDir(dir); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestReadInteractionsStats(t *testing.T) {
	dir := writeDir(t, true)
	rows, stats, err := readInteractions(filepath.Join(dir, InteractionsFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Errorf("expected 4 valid rows, got %d", len(rows))
	}
	if stats.missingColumns != 1 || stats.badSeverity != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDownloadDecodesLatin1(t *testing.T) {
	// Condition contains an ISO-8859-1 encoded e-acute.
	latin1 := []byte(`{"medications":[{"id":"m1","name":"Amoxicilline"}],"guidelines":[{"id":"g1","condition":"Pneumopathie acquise en communaut` + "\xe9" + `","firstLine":[{"medications":["Amoxicilline"]}]}]}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(latin1)
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := New(dir, WithURL(srv.URL, ""), WithHTTPClient(srv.Client()))

	ds, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.Guidelines[0].Condition; got != "Pneumopathie acquise en communauté" {
		t.Errorf("expected decoded condition, got %q", got)
	}
}

func TestDownloadFailureUsesFilesOnDisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := writeDir(t, false)
	src := New(dir, WithURL(srv.URL, ""), WithHTTPClient(srv.Client()))
	if _, err := src.Load(context.Background()); err != nil {
		t.Fatalf("expected files on disk to be used, got %v", err)
	}

	empty := New(t.TempDir(), WithURL(srv.URL, ""), WithHTTPClient(srv.Client()))
	if _, err := empty.Load(context.Background()); err == nil {
		t.Fatal("expected error without files on disk")
	}
}

func TestSourceServesCatalog(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, ".tsv") {
			_, _ = w.Write([]byte(interactionsTSV))
			return
		}
		_, _ = w.Write([]byte(catalogJSON))
	}))
	defer srv.Close()

	src := New(t.TempDir(), WithURL(srv.URL+"/catalog.json", srv.URL+"/interactions.tsv"), WithHTTPClient(srv.Client()))
	cat := catalog.New(src)

	m, err := cat.FindByNameOrAlias(context.Background(), "Coumadin")
	if err != nil || m == nil || m.ID != "med-warfarin" {
		t.Fatalf("expected warfarin, got %+v (%v)", m, err)
	}
	if len(m.Interactions) != 1 {
		t.Errorf("expected merged TSV interaction, got %+v", m.Interactions)
	}
	g, err := cat.FindGuideline(context.Background(), "I10")
	if err != nil || g == nil {
		t.Fatalf("expected guideline from the same snapshot, got %+v (%v)", g, err)
	}
	if status := cat.Status(); status.Source != catalog.SourceStore || status.Degraded {
		t.Errorf("unexpected status %+v", status)
	}
	if hits.Load() != 2 {
		t.Errorf("expected one download per file, got %d requests", hits.Load())
	}
}
