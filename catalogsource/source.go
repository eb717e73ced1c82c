// Package catalogsource reads the medication catalog from a directory of
// export files, optionally refreshed from a remote URL before each load.
//
// The directory holds:
//
//	catalog.json       {"medications": [...], "guidelines": [...]}
//	interactions.tsv   optional, one interaction per line:
//	                   medication<TAB>partner<TAB>severity<TAB>description[<TAB>evidence]
//
// Interactions from the TSV file are merged into the medication they name.
package catalogsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/textnorm"
)

const (
	CatalogFile      = "catalog.json"
	InteractionsFile = "interactions.tsv"
)

// Option configures a Source.
type Option func(*Source)

// WithURL downloads catalog.json from url, and interactions.tsv from
// interactionsURL when not empty, before each load.
func WithURL(url, interactionsURL string) Option {
	return func(s *Source) {
		s.url = url
		s.interactionsURL = interactionsURL
	}
}

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// Source implements interfaces.CatalogStore. LoadMedications reads (and
// downloads) the files; LoadGuidelines returns the guidelines of that same
// read so a catalog load sees one consistent snapshot.
type Source struct {
	dir             string
	url             string
	interactionsURL string
	client          *http.Client

	mu   sync.Mutex
	last *entities.CatalogDataset
}

var _ interfaces.CatalogStore = (*Source)(nil)

func New(dir string, opts ...Option) *Source {
	s := &Source{dir: dir, client: defaultClient()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) LoadMedications(ctx context.Context) ([]entities.MedicationRecord, error) {
	ds, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = ds
	s.mu.Unlock()
	return ds.Medications, nil
}

func (s *Source) LoadGuidelines(ctx context.Context) ([]entities.TreatmentGuideline, error) {
	s.mu.Lock()
	ds := s.last
	s.last = nil
	s.mu.Unlock()

	if ds == nil {
		var err error
		if ds, err = s.Load(ctx); err != nil {
			return nil, err
		}
	}
	return ds.Guidelines, nil
}

// Load downloads the remote files when configured, then reads the directory.
// A failed download falls back to the files already on disk.
func (s *Source) Load(ctx context.Context) (*entities.CatalogDataset, error) {
	if s.url != "" {
		if err := s.downloadAll(ctx); err != nil {
			if _, statErr := os.Stat(filepath.Join(s.dir, CatalogFile)); statErr != nil {
				return nil, err
			}
			logging.Warn("Catalog download failed, using files on disk", "error", err)
		}
	}
	return ReadDir(s.dir)
}

func (s *Source) downloadAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return download(ctx, s.client, s.url, s.dir, CatalogFile) })
	if s.interactionsURL != "" {
		g.Go(func() error { return download(ctx, s.client, s.interactionsURL, s.dir, InteractionsFile) })
	}
	return g.Wait()
}

// ReadDir reads catalog.json and merges interactions.tsv when present.
func ReadDir(dir string) (*entities.CatalogDataset, error) {
	raw, err := os.ReadFile(filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", CatalogFile, err)
	}
	raw, err = toUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", CatalogFile, err)
	}

	var ds entities.CatalogDataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", CatalogFile, err)
	}

	rows, stats, err := readInteractions(filepath.Join(dir, InteractionsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		merged, unmatched := mergeInteractions(ds.Medications, rows)
		logging.Info("Interaction file merged",
			"lines", stats.lines,
			"merged", merged,
			"unmatched", unmatched,
			"skipped_missing_columns", stats.missingColumns,
			"skipped_bad_severity", stats.badSeverity,
		)
	}

	return &ds, nil
}

// mergeInteractions appends each row to the medication it names unless that
// medication already declares the partner.
func mergeInteractions(meds []entities.MedicationRecord, rows []interactionRow) (merged, unmatched int) {
	byKey := make(map[string]int, len(meds)*2)
	for i := range meds {
		for _, k := range []string{meds[i].Name, meds[i].GenericName} {
			if key := textnorm.Key(k); key != "" {
				if _, ok := byKey[key]; !ok {
					byKey[key] = i
				}
			}
		}
	}

	for _, r := range rows {
		i, ok := byKey[textnorm.Key(r.medication)]
		if !ok {
			unmatched++
			continue
		}
		if declaresPartner(meds[i].Interactions, r.interaction.Medication) {
			continue
		}
		meds[i].Interactions = append(meds[i].Interactions, r.interaction)
		merged++
	}
	return merged, unmatched
}

func declaresPartner(list []entities.Interaction, partner string) bool {
	for _, in := range list {
		if textnorm.Equal(in.Medication, partner) {
			return true
		}
	}
	return false
}

func normalizeSeverity(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case entities.SeverityHigh, "severe", "major":
		return entities.SeverityHigh, true
	case entities.SeverityModerate:
		return entities.SeverityModerate, true
	case entities.SeverityLow, "mild", "minor":
		return entities.SeverityLow, true
	}
	return "", false
}
