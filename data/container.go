// Package data holds the in-memory medication catalog. Indexes are built once
// per load and swapped atomically so readers never observe a half-built
// catalog while a refresh is running.
package data

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/textnorm"
)

// SearchKeys are the precomputed normalized strings of one medication used by
// substring matching.
type SearchKeys struct {
	Name    string
	Generic string
	Aliases []string
}

// Indexes is an immutable snapshot of the catalog. Slices keep catalog order,
// which decides ties in fuzzy lookups.
type Indexes struct {
	Medications []entities.MedicationRecord
	Keys        []SearchKeys
	Guidelines  []entities.TreatmentGuideline

	byID        map[string]int
	byName      map[string]int
	byAlias     map[string]int
	byCode      map[string]int
	byCondition map[string]int
	byGuideKey  map[string]int
	byGuideCode map[string]int
	guideKeys   [][]string
}

// NormalizeCode canonicalises an external code (ICD-10, RxNorm, ATC...) for
// exact matching: case-insensitive, whitespace ignored.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// BuildIndexes indexes medications and guidelines. When two records claim the
// same key the first one in catalog order wins.
func BuildIndexes(medications []entities.MedicationRecord, guidelines []entities.TreatmentGuideline) *Indexes {
	idx := &Indexes{
		Medications: medications,
		Keys:        make([]SearchKeys, len(medications)),
		Guidelines:  guidelines,
		byID:        make(map[string]int, len(medications)),
		byName:      make(map[string]int, len(medications)),
		byAlias:     make(map[string]int),
		byCode:      make(map[string]int),
		byCondition: make(map[string]int, len(guidelines)),
		byGuideKey:  make(map[string]int),
		byGuideCode: make(map[string]int),
		guideKeys:   make([][]string, len(guidelines)),
	}

	for i := range medications {
		m := &medications[i]
		keys := SearchKeys{
			Name:    textnorm.Key(m.Name),
			Generic: textnorm.Key(m.GenericName),
		}

		putFirst(idx.byID, strings.TrimSpace(m.ID), i)
		putFirst(idx.byName, keys.Name, i)
		for _, brand := range m.BrandNames {
			k := textnorm.Key(brand)
			if k == "" {
				continue
			}
			keys.Aliases = append(keys.Aliases, k)
			putFirst(idx.byAlias, k, i)
		}
		for _, code := range m.Codes {
			putFirst(idx.byCode, NormalizeCode(code), i)
		}
		idx.Keys[i] = keys
	}

	for i := range guidelines {
		g := &guidelines[i]
		condition := textnorm.Key(g.Condition)
		putFirst(idx.byCondition, condition, i)
		keys := []string{condition}
		for _, alias := range g.Aliases {
			k := textnorm.Key(alias)
			if k == "" {
				continue
			}
			keys = append(keys, k)
			putFirst(idx.byGuideKey, k, i)
		}
		idx.guideKeys[i] = keys
		for _, code := range g.Codes {
			putFirst(idx.byGuideCode, NormalizeCode(code), i)
		}
	}

	return idx
}

func putFirst(m map[string]int, key string, i int) {
	if key == "" {
		return
	}
	if _, exists := m[key]; !exists {
		m[key] = i
	}
}

// ByID returns the medication with the given id.
func (idx *Indexes) ByID(id string) (*entities.MedicationRecord, bool) {
	return idx.medication(idx.byID, strings.TrimSpace(id))
}

// ByName matches the canonical name exactly, after normalization.
func (idx *Indexes) ByName(key string) (*entities.MedicationRecord, bool) {
	return idx.medication(idx.byName, key)
}

// ByAlias matches a brand name exactly, after normalization.
func (idx *Indexes) ByAlias(key string) (*entities.MedicationRecord, bool) {
	return idx.medication(idx.byAlias, key)
}

// ByCode matches an external code in O(1).
func (idx *Indexes) ByCode(code string) (*entities.MedicationRecord, bool) {
	return idx.medication(idx.byCode, NormalizeCode(code))
}

// GuidelineByCondition matches a guideline condition exactly, after normalization.
func (idx *Indexes) GuidelineByCondition(key string) (*entities.TreatmentGuideline, bool) {
	i, ok := idx.byCondition[key]
	if !ok {
		return nil, false
	}
	return &idx.Guidelines[i], true
}

// GuidelineByAlias matches an alternative condition name exactly.
func (idx *Indexes) GuidelineByAlias(key string) (*entities.TreatmentGuideline, bool) {
	i, ok := idx.byGuideKey[key]
	if !ok {
		return nil, false
	}
	return &idx.Guidelines[i], true
}

// GuidelineKeys returns the normalized condition followed by the normalized
// aliases of the i-th guideline.
func (idx *Indexes) GuidelineKeys(i int) []string {
	return idx.guideKeys[i]
}

// GuidelineByCode matches a guideline condition code exactly.
func (idx *Indexes) GuidelineByCode(code string) (*entities.TreatmentGuideline, bool) {
	i, ok := idx.byGuideCode[NormalizeCode(code)]
	if !ok {
		return nil, false
	}
	return &idx.Guidelines[i], true
}

func (idx *Indexes) medication(m map[string]int, key string) (*entities.MedicationRecord, bool) {
	i, ok := m[key]
	if !ok {
		return nil, false
	}
	return &idx.Medications[i], true
}

// Snapshot is one installed catalog together with its provenance. All fields
// are replaced together by Swap.
type Snapshot struct {
	Indexes     *Indexes
	Source      string
	Degraded    bool
	LastUpdated time.Time
}

// CatalogContainer holds the current catalog snapshot and its provenance.
type CatalogContainer struct {
	current  atomic.Pointer[Snapshot]
	updating atomic.Bool
}

// NewCatalogContainer creates an empty container.
func NewCatalogContainer() *CatalogContainer {
	cc := &CatalogContainer{}
	cc.current.Store(&Snapshot{Indexes: BuildIndexes(nil, nil)})
	return cc
}

// Snapshot returns the current catalog and its provenance as one consistent
// value.
func (cc *CatalogContainer) Snapshot() Snapshot {
	snap := cc.current.Load()
	if snap == nil || snap.Indexes == nil {
		logging.Warn("Catalog indexes are empty or invalid")
		return Snapshot{Indexes: BuildIndexes(nil, nil)}
	}
	return *snap
}

// Indexes returns the current snapshot.
func (cc *CatalogContainer) Indexes() *Indexes {
	return cc.Snapshot().Indexes
}

// Source names where the current snapshot was loaded from.
func (cc *CatalogContainer) Source() string {
	return cc.Snapshot().Source
}

// IsDegraded reports whether the snapshot is the built-in fallback dataset.
func (cc *CatalogContainer) IsDegraded() bool {
	return cc.Snapshot().Degraded
}

// GetLastUpdated returns the timestamp of the last swap.
func (cc *CatalogContainer) GetLastUpdated() time.Time {
	return cc.Snapshot().LastUpdated
}

// IsUpdating returns true while a refresh is in progress.
func (cc *CatalogContainer) IsUpdating() bool {
	return cc.updating.Load()
}

// Swap atomically replaces the snapshot.
func (cc *CatalogContainer) Swap(idx *Indexes, source string, degraded bool) {
	cc.current.Store(&Snapshot{
		Indexes:     idx,
		Source:      source,
		Degraded:    degraded,
		LastUpdated: time.Now(),
	})
}

// BeginUpdate marks the start of a refresh.
// Returns false if another refresh is in progress.
func (cc *CatalogContainer) BeginUpdate() bool {
	return cc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a refresh.
func (cc *CatalogContainer) EndUpdate() {
	cc.updating.Store(false)
}
