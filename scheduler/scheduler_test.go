package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thiskanishk/healthassist-cds/catalog"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
)

func init() {
	logging.InitLogger("")
}

// mockCatalog implements Refresher
type mockCatalog struct {
	mu       sync.Mutex
	status   interfaces.CatalogStatus
	err      error
	refreshs atomic.Int32
}

func (m *mockCatalog) Refresh(ctx context.Context) error {
	m.refreshs.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.status.LastUpdated = time.Now()
		m.status.Initialized = true
	}
	return m.err
}

func (m *mockCatalog) Status() interfaces.CatalogStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func TestStartPerformsInitialRefresh(t *testing.T) {
	cat := &mockCatalog{}
	s := NewScheduler(cat, WithRefreshTimes("03:00"))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if cat.refreshs.Load() != 1 {
		t.Errorf("expected 1 initial refresh, got %d", cat.refreshs.Load())
	}
	if !cat.Status().Initialized {
		t.Error("catalog should be initialized after Start")
	}
}

func TestStartFailsWhenInitialLoadFails(t *testing.T) {
	s := NewScheduler(&mockCatalog{err: catalog.ErrCatalogUnavailable})
	err := s.Start()
	if !errors.Is(err, catalog.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestRefreshInProgressIsNotAnError(t *testing.T) {
	s := NewScheduler(&mockCatalog{err: catalog.ErrRefreshInProgress})
	if err := s.refresh(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestStartRejectsInvalidTimes(t *testing.T) {
	s := NewScheduler(&mockCatalog{}, WithRefreshTimes("25:99"))
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected error for an invalid time")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(&mockCatalog{}, WithMonitorInterval(time.Millisecond))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestCheckHealth(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status interfaces.CatalogStatus
		want   bool
	}{
		{"fresh", interfaces.CatalogStatus{LastUpdated: now.Add(-time.Hour)}, true},
		{"stale", interfaces.CatalogStatus{LastUpdated: now.Add(-26 * time.Hour)}, false},
		{"degraded", interfaces.CatalogStatus{LastUpdated: now, Degraded: true, Source: catalog.SourceFallback}, false},
		{"never loaded", interfaces.CatalogStatus{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&mockCatalog{status: tt.status})
			if got := s.checkHealth(now); got != tt.want {
				t.Errorf("checkHealth = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRefresh(t *testing.T) {
	s := NewScheduler(&mockCatalog{}, WithRefreshTimes("06:00", "18:00"))
	loc := time.UTC

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 10, 5, 0, 0, 0, loc), time.Date(2026, 3, 10, 6, 0, 0, 0, loc)},
		{time.Date(2026, 3, 10, 6, 0, 0, 0, loc), time.Date(2026, 3, 10, 18, 0, 0, 0, loc)},
		{time.Date(2026, 3, 10, 19, 0, 0, 0, loc), time.Date(2026, 3, 11, 6, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		if got := s.NextRefresh(tt.now); !got.Equal(tt.want) {
			t.Errorf("NextRefresh(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestSchedulerDrivesRealCatalog(t *testing.T) {
	cat := catalog.New(nil)
	var purged atomic.Int32
	s := NewScheduler(cat, WithCachePurge(func() int { purged.Add(1); return 0 }))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	st := cat.Status()
	if !st.Initialized || st.Source != catalog.SourceFallback {
		t.Errorf("expected initialized fallback catalog, got %+v", st)
	}
}
