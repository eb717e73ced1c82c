// Package scheduler refreshes the medication catalog at fixed times of day and
// watches for a catalog that has gone stale or is stuck on the fallback data.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/thiskanishk/healthassist-cds/catalog"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Refresher is the part of the catalog the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	interfaces.CatalogStatusProvider
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRefreshTimes sets the HH:MM times of day at which the catalog is
// refreshed.
func WithRefreshTimes(times ...string) Option {
	return func(s *Scheduler) { s.times = times }
}

// WithMonitorInterval sets how often staleness is checked.
func WithMonitorInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.monitorEvery = d }
}

// WithStaleAfter sets the age after which the catalog is reported stale.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Scheduler) { s.staleAfter = d }
}

// WithCachePurge registers an hourly purge of expired cache entries.
func WithCachePurge(purge func() int) Option {
	return func(s *Scheduler) { s.purge = purge }
}

// WithRefreshTimeout bounds a single refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.refreshTimeout = d }
}

// Scheduler runs catalog refreshes with gocron.
type Scheduler struct {
	catalog        Refresher
	scheduler      *gocron.Scheduler
	times          []string
	monitorEvery   time.Duration
	staleAfter     time.Duration
	refreshTimeout time.Duration
	purge          func() int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler for cat. Defaults: refresh at 06:00 and
// 18:00 local time, check staleness hourly, stale after 25 hours.
func NewScheduler(cat Refresher, opts ...Option) *Scheduler {
	s := &Scheduler{
		catalog:        cat,
		scheduler:      gocron.NewScheduler(time.Local),
		times:          []string{"06:00", "18:00"},
		monitorEvery:   time.Hour,
		staleAfter:     25 * time.Hour,
		refreshTimeout: 10 * time.Minute,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the initial load, schedules the refreshes and starts the
// staleness monitor.
func (s *Scheduler) Start() error {
	if err := s.refresh(); err != nil {
		logging.Error("Failed to perform initial catalog load", "error", err)
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	_, err := s.scheduler.Every(1).Day().At(strings.Join(s.times, ";")).Do(func() {
		if err := s.refresh(); err != nil {
			logging.Error("Scheduled catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}

	if s.purge != nil {
		_, err = s.scheduler.Every(1).Hour().Do(func() {
			if n := s.purge(); n > 0 {
				logging.Debug("Purged expired cache entries", "count", n)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule cache purge: %w", err)
		}
	}

	s.scheduler.StartAsync()
	go s.monitor()

	logging.Info("Catalog scheduler started", "refresh_times", s.times)
	return nil
}

// Stop stops scheduled jobs and the monitor. It is safe to call twice.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.scheduler.Stop()
		close(s.stop)
	})
}

// refresh runs one catalog refresh. A refresh already in flight is not an
// error.
func (s *Scheduler) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	start := time.Now()
	err := s.catalog.Refresh(ctx)
	if errors.Is(err, catalog.ErrRefreshInProgress) {
		logging.Info("Catalog refresh already in progress, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	st := s.catalog.Status()
	logging.Info("Catalog refresh completed",
		"duration", time.Since(start).String(),
		"source", st.Source,
		"medications", st.MedicationCount,
		"guidelines", st.GuidelineCount,
	)
	return nil
}

func (s *Scheduler) monitor() {
	ticker := time.NewTicker(s.monitorEvery)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.checkHealth(time.Now())
		}
	}
}

// checkHealth logs a warning when the catalog is stale or degraded and
// reports whether it is healthy.
func (s *Scheduler) checkHealth(now time.Time) bool {
	st := s.catalog.Status()
	healthy := true

	if age := now.Sub(st.LastUpdated); !st.LastUpdated.IsZero() && age > s.staleAfter {
		logging.Warn("Catalog has not been refreshed recently",
			"last_updated", st.LastUpdated.Format(time.RFC3339),
			"age", age.Round(time.Minute).String(),
		)
		healthy = false
	}
	if st.Degraded {
		logging.Warn("Catalog is serving fallback data", "source", st.Source)
		healthy = false
	}
	return healthy
}

// NextRefresh returns the next scheduled refresh time after now.
func (s *Scheduler) NextRefresh(now time.Time) time.Time {
	var next time.Time
	for _, hhmm := range s.times {
		t, err := time.ParseInLocation("15:04", hhmm, now.Location())
		if err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}
