// Package catalog serves medication and treatment guideline lookups from an
// in-memory index. The index is built once on first use from the cache, the
// backing store or, as a last resort, the bundled fallback dataset, and can be
// rebuilt later without blocking readers.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/thiskanishk/healthassist-cds/data"
	"github.com/thiskanishk/healthassist-cds/entities"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/textnorm"
	"github.com/thiskanishk/healthassist-cds/validation"
)

// Load sources reported by Status and LoadEvent.
const (
	SourceCache    = "cache"
	SourceStore    = "store"
	SourceFallback = "fallback"
)

// CacheKey is the cache entry holding the serialized catalog.
const CacheKey = "cds:catalog:v1"

const defaultCacheTTL = 12 * time.Hour

var (
	// ErrCatalogUnavailable means neither the backing store nor the fallback
	// dataset produced any data.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrRefreshInProgress is returned by Refresh when another refresh holds
	// the update guard.
	ErrRefreshInProgress = errors.New("catalog refresh already in progress")
)

// LoadEvent describes one load attempt. Hooks receive exactly one event per
// initialization or refresh.
type LoadEvent struct {
	Source      string
	Refresh     bool
	Degraded    bool
	Medications int
	Guidelines  int
	Duration    time.Duration
	Err         error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache enables warm starts from c.
func WithCache(c interfaces.Cache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

// WithCacheTTL sets the lifetime of cache entries written after a store load.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cat *Catalog) {
		if ttl > 0 {
			cat.cacheTTL = ttl
		}
	}
}

// WithFallback replaces the bundled dataset. A nil loader disables fallback.
func WithFallback(load func() (*entities.CatalogDataset, error)) Option {
	return func(cat *Catalog) { cat.fallback = load }
}

// WithLoadHook registers an instrumentation callback.
func WithLoadHook(hook func(LoadEvent)) Option {
	return func(cat *Catalog) { cat.hooks = append(cat.hooks, hook) }
}

// WithValidator replaces the load boundary validator.
func WithValidator(v interfaces.RecordValidator) Option {
	return func(cat *Catalog) { cat.validator = v }
}

// Catalog is an explicitly constructed, shareable catalog instance.
type Catalog struct {
	store     interfaces.CatalogStore
	cache     interfaces.Cache
	cacheTTL  time.Duration
	fallback  func() (*entities.CatalogDataset, error)
	validator interfaces.RecordValidator
	hooks     []func(LoadEvent)

	container *data.CatalogContainer
	loaded    atomic.Bool
	initGroup singleflight.Group
}

var (
	_ interfaces.MedicationCatalog     = (*Catalog)(nil)
	_ interfaces.CatalogStatusProvider = (*Catalog)(nil)
)

// New creates a catalog over store. store may be nil, in which case the
// fallback dataset is served.
func New(store interfaces.CatalogStore, opts ...Option) *Catalog {
	c := &Catalog{
		store:     store,
		cacheTTL:  defaultCacheTTL,
		fallback:  FallbackDataset,
		validator: validation.NewDataValidator(),
		container: data.NewCatalogContainer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensureLoaded blocks until the first initialization has completed. Concurrent
// callers share a single attempt.
func (c *Catalog) ensureLoaded(ctx context.Context) error {
	if c.loaded.Load() {
		return nil
	}

	ch := c.initGroup.DoChan("init", func() (any, error) {
		// A caller may arrive just after a previous attempt finished.
		if c.loaded.Load() {
			return nil, nil
		}
		// The load outlives any single caller's context.
		err := c.initialize(context.WithoutCancel(ctx))
		if err == nil {
			c.loaded.Store(true)
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) initialize(ctx context.Context) error {
	start := time.Now()

	if ds := c.loadFromCache(ctx); ds != nil {
		c.install(ds, SourceCache, false)
		c.emit(LoadEvent{Source: SourceCache, Medications: len(ds.Medications), Guidelines: len(ds.Guidelines), Duration: time.Since(start)})
		return nil
	}

	ds, err := c.loadFromStore(ctx)
	if err == nil {
		c.install(ds, SourceStore, false)
		c.writeCache(ctx, ds)
		c.emit(LoadEvent{Source: SourceStore, Medications: len(ds.Medications), Guidelines: len(ds.Guidelines), Duration: time.Since(start)})
		return nil
	}

	logging.Warn("Backing store unavailable, loading fallback dataset", "error", err)

	fb, fbErr := c.loadFallback()
	if fbErr != nil {
		err = fmt.Errorf("%w: store: %v, fallback: %v", ErrCatalogUnavailable, err, fbErr)
		logging.Error("Catalog initialization failed", "error", err)
		c.emit(LoadEvent{Source: SourceFallback, Degraded: true, Duration: time.Since(start), Err: err})
		return err
	}

	c.install(fb, SourceFallback, true)
	logging.Warn("Catalog running in degraded mode",
		"source", SourceFallback,
		"medications", len(fb.Medications),
		"guidelines", len(fb.Guidelines),
	)
	c.emit(LoadEvent{Source: SourceFallback, Degraded: true, Medications: len(fb.Medications), Guidelines: len(fb.Guidelines), Duration: time.Since(start)})
	return nil
}

func (c *Catalog) loadFromCache(ctx context.Context) *entities.CatalogDataset {
	if c.cache == nil {
		return nil
	}

	raw, ok, err := c.cache.Get(ctx, CacheKey)
	if err != nil {
		logging.Warn("Catalog cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var ds entities.CatalogDataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		logging.Warn("Catalog cache entry is corrupt, ignoring", "error", err)
		return nil
	}
	clean, err := c.sanitize(&ds)
	if err != nil {
		logging.Warn("Catalog cache entry unusable", "error", err)
		return nil
	}
	return clean
}

func (c *Catalog) writeCache(ctx context.Context, ds *entities.CatalogDataset) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(ds)
	if err != nil {
		logging.Warn("Catalog cache encode failed", "error", err)
		return
	}
	if err := c.cache.Set(ctx, CacheKey, raw, c.cacheTTL); err != nil {
		logging.Warn("Catalog cache write failed", "error", err)
	}
}

// loadFromStore treats any error or empty result as a failed load.
func (c *Catalog) loadFromStore(ctx context.Context) (*entities.CatalogDataset, error) {
	if c.store == nil {
		return nil, errors.New("no backing store configured")
	}

	meds, err := c.store.LoadMedications(ctx)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	guidelines, err := c.store.LoadGuidelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("load guidelines: %w", err)
	}
	if len(meds) == 0 || len(guidelines) == 0 {
		return nil, fmt.Errorf("empty result: %d medications, %d guidelines", len(meds), len(guidelines))
	}

	return c.sanitize(&entities.CatalogDataset{Medications: meds, Guidelines: guidelines})
}

func (c *Catalog) loadFallback() (*entities.CatalogDataset, error) {
	if c.fallback == nil {
		return nil, errors.New("fallback disabled")
	}
	ds, err := c.fallback()
	if err != nil {
		return nil, err
	}
	return c.sanitize(ds)
}

// sanitize drops records that fail validation and reports data quality.
func (c *Catalog) sanitize(ds *entities.CatalogDataset) (*entities.CatalogDataset, error) {
	if ds == nil {
		return nil, errors.New("nil dataset")
	}

	out := &entities.CatalogDataset{
		Medications: make([]entities.MedicationRecord, 0, len(ds.Medications)),
		Guidelines:  make([]entities.TreatmentGuideline, 0, len(ds.Guidelines)),
	}
	for i := range ds.Medications {
		if err := c.validator.ValidateMedication(&ds.Medications[i]); err != nil {
			logging.Debug("Dropping invalid medication", "error", err)
			continue
		}
		out.Medications = append(out.Medications, ds.Medications[i])
	}
	for i := range ds.Guidelines {
		if err := c.validator.ValidateGuideline(&ds.Guidelines[i]); err != nil {
			logging.Debug("Dropping invalid guideline", "error", err)
			continue
		}
		out.Guidelines = append(out.Guidelines, ds.Guidelines[i])
	}

	report := c.validator.ReportDataQuality(ds.Medications, ds.Guidelines)
	if dropped := len(report.InvalidMedications) + len(report.InvalidGuidelines); dropped > 0 {
		logging.Warn("Dropped invalid catalog records", "count", dropped)
	}

	if len(out.Medications) == 0 {
		return nil, errors.New("no valid medications")
	}
	return out, nil
}

func (c *Catalog) install(ds *entities.CatalogDataset, source string, degraded bool) {
	c.container.Swap(data.BuildIndexes(ds.Medications, ds.Guidelines), source, degraded)
	logging.Info("Catalog loaded",
		"source", source,
		"medications", len(ds.Medications),
		"guidelines", len(ds.Guidelines),
	)
}

func (c *Catalog) emit(ev LoadEvent) {
	for _, hook := range c.hooks {
		hook(ev)
	}
}

// Refresh reloads from the backing store and swaps the index. On failure the
// current data keeps being served. Before first use it performs the initial
// load instead.
func (c *Catalog) Refresh(ctx context.Context) error {
	if !c.loaded.Load() {
		return c.ensureLoaded(ctx)
	}
	if !c.container.BeginUpdate() {
		return ErrRefreshInProgress
	}
	defer c.container.EndUpdate()

	start := time.Now()
	ds, err := c.loadFromStore(ctx)
	if err != nil {
		logging.Error("Catalog refresh failed, keeping current data",
			"error", err,
			"source", c.container.Source(),
		)
		c.emit(LoadEvent{Source: SourceStore, Refresh: true, Degraded: c.container.IsDegraded(), Duration: time.Since(start), Err: err})
		return err
	}

	c.install(ds, SourceStore, false)
	c.writeCache(ctx, ds)
	c.emit(LoadEvent{Source: SourceStore, Refresh: true, Medications: len(ds.Medications), Guidelines: len(ds.Guidelines), Duration: time.Since(start)})
	return nil
}

// Status reports the current load state. It never triggers a load.
func (c *Catalog) Status() interfaces.CatalogStatus {
	snap := c.container.Snapshot()
	return interfaces.CatalogStatus{
		Initialized:     c.loaded.Load(),
		Source:          snap.Source,
		Degraded:        snap.Degraded,
		MedicationCount: len(snap.Indexes.Medications),
		GuidelineCount:  len(snap.Indexes.Guidelines),
		LastUpdated:     snap.LastUpdated,
		Refreshing:      c.container.IsUpdating(),
	}
}

// FindByNameOrAlias resolves query by exact canonical name, then exact brand
// alias, then the first catalog-order record whose name, generic name or alias
// contains it. Returns nil when nothing matches.
func (c *Catalog) FindByNameOrAlias(ctx context.Context, query string) (*entities.MedicationRecord, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	key := textnorm.Key(query)
	if key == "" {
		return nil, nil
	}

	idx := c.container.Indexes()
	if m, ok := idx.ByName(key); ok {
		return m, nil
	}
	if m, ok := idx.ByAlias(key); ok {
		return m, nil
	}
	for i, k := range idx.Keys {
		if matchesAny(key, k.Name, k.Generic) || matchesAny(key, k.Aliases...) {
			return &idx.Medications[i], nil
		}
	}
	return nil, nil
}

func matchesAny(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if h != "" && strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

// FindByID returns the record with the given catalog id.
func (c *Catalog) FindByID(ctx context.Context, id string) (*entities.MedicationRecord, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	m, _ := c.container.Indexes().ByID(id)
	return m, nil
}

// FindByCode returns the record indexed under an external code.
func (c *Catalog) FindByCode(ctx context.Context, code string) (*entities.MedicationRecord, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	m, _ := c.container.Indexes().ByCode(code)
	return m, nil
}

// FindGuideline resolves a condition name or classification code: exact
// condition, exact alias, exact code, then substring over condition and
// aliases in catalog order.
func (c *Catalog) FindGuideline(ctx context.Context, conditionOrCode string) (*entities.TreatmentGuideline, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	key := textnorm.Key(conditionOrCode)
	if key == "" {
		return nil, nil
	}

	idx := c.container.Indexes()
	if g, ok := idx.GuidelineByCondition(key); ok {
		return g, nil
	}
	if g, ok := idx.GuidelineByAlias(key); ok {
		return g, nil
	}
	if g, ok := idx.GuidelineByCode(conditionOrCode); ok {
		return g, nil
	}
	for i := range idx.Guidelines {
		if matchesAny(key, idx.GuidelineKeys(i)...) {
			return &idx.Guidelines[i], nil
		}
	}
	return nil, nil
}

// Medications returns all records in catalog order. The slice must not be
// modified.
func (c *Catalog) Medications(ctx context.Context) ([]entities.MedicationRecord, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return c.container.Indexes().Medications, nil
}

// Guidelines returns all guidelines in catalog order.
func (c *Catalog) Guidelines(ctx context.Context) ([]entities.TreatmentGuideline, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return c.container.Indexes().Guidelines, nil
}
