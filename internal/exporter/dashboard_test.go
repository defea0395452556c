package exporter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/store"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
)

type fakePages struct {
	pages   [][]dashboard.WidgetSnapshot
	retired map[string]widget.Stats
}

func (f fakePages) PageSnapshots() [][]dashboard.WidgetSnapshot {
	return f.pages
}

func (f fakePages) RetiredStats() map[string]widget.Stats {
	return f.retired
}

type fakeCacheStats store.Stats

func (f fakeCacheStats) Stats() store.Stats {
	return store.Stats(f)
}

func indexPoints(points []MetricPoint) map[string]float64 {
	indexed := make(map[string]float64, len(points))
	for _, point := range points {
		indexed[seriesKey(point)] = point.Value
	}
	return indexed
}

func TestDashboardReaderSnapshot(t *testing.T) {
	t.Parallel()

	pages := fakePages{
		pages: [][]dashboard.WidgetSnapshot{
			{
				{Widget: "contributions", Phase: widget.PhaseLoaded, Epoch: 3, Stats: widget.Stats{Issued: 3, Applied: 2, Stale: 1}},
				{Widget: "fun_stats", Phase: widget.PhaseError, Kind: widget.KindTransient, Epoch: 1, Stats: widget.Stats{Issued: 1, Failed: 1}},
			},
			{
				{Widget: "contributions", Phase: widget.PhaseLoading, Epoch: 1, Stats: widget.Stats{Issued: 1}},
			},
		},
		retired: map[string]widget.Stats{
			"contributions": {Issued: 10, Applied: 10},
			"rankings":      {Issued: 2, Applied: 1, Failed: 1},
		},
	}
	reader := NewDashboardReader(pages, fakeCacheStats{Entries: 5, Hits: 8, Misses: 2}, "redis")

	got := indexPoints(reader.Snapshot())
	want := map[string]float64{
		"gh_dashboard_pages_active|": 2,
		"gh_dashboard_widget_fetches_total|outcome=issued;widget=contributions;":  14,
		"gh_dashboard_widget_fetches_total|outcome=applied;widget=contributions;": 12,
		"gh_dashboard_widget_fetches_total|outcome=stale;widget=contributions;":   1,
		"gh_dashboard_widget_fetches_total|outcome=failed;widget=fun_stats;":      1,
		"gh_dashboard_widget_fetches_total|outcome=issued;widget=rankings;":       2,
		"gh_dashboard_widget_pages|phase=loaded;widget=contributions;":            1,
		"gh_dashboard_widget_pages|phase=loading;widget=contributions;":           1,
		"gh_dashboard_widget_pages|phase=idle;widget=contributions;":              0,
		"gh_dashboard_widget_pages|phase=error;widget=fun_stats;":                 1,
		"gh_dashboard_widget_epoch_max|widget=contributions;":                     3,
		"gh_dashboard_cache_entries|backend=redis;":                               5,
		"gh_dashboard_cache_hits_total|backend=redis;":                            8,
		"gh_dashboard_cache_misses_total|backend=redis;":                          2,
	}
	for key, value := range want {
		actual, ok := got[key]
		if !ok {
			t.Fatalf("missing series %s", key)
		}
		if actual != value {
			t.Fatalf("%s = %v, want %v", key, actual, value)
		}
	}
	if _, ok := got["gh_dashboard_widget_pages|phase=loaded;widget=rankings;"]; ok {
		t.Fatalf("retired-only widget should not report live phases")
	}
}

func TestDashboardReaderWithoutSources(t *testing.T) {
	t.Parallel()

	if got := NewDashboardReader(nil, nil, "").Snapshot(); len(got) != 0 {
		t.Fatalf("Snapshot() = %#v, want empty", got)
	}
}

func BenchmarkOpenMetricsHandlerPages(b *testing.B) {
	const pageCount = 2000

	pages := fakePages{retired: map[string]widget.Stats{}}
	widgets := []string{"contributions", "code_frequency", "fun_stats", "top_repos", "profile", "rankings"}
	for i := range pageCount {
		page := make([]dashboard.WidgetSnapshot, 0, len(widgets))
		for j, name := range widgets {
			page = append(page, dashboard.WidgetSnapshot{
				Widget: name,
				Phase:  widget.PhaseLoaded,
				Epoch:  uint64(i%7 + j),
				Stats:  widget.Stats{Issued: uint64(i%7 + j), Applied: uint64(i % 7)},
			})
		}
		pages.pages = append(pages.pages, page)
	}

	handler := NewOpenMetricsHandler(NewDashboardReader(pages, fakeCacheStats{Entries: pageCount}, "memory"))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text")

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
		}
	}
}
