package exporter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticReader []MetricPoint

func (r staticReader) Snapshot() []MetricPoint {
	return r
}

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestOpenMetricsHandler(t *testing.T) {
	t.Parallel()

	handler := NewOpenMetricsHandler(staticReader{
		{Name: "gh_dashboard_pages_active", Help: "Dashboard pages currently held in memory.", Type: MetricGauge, Value: 3},
		{
			Name:   "gh_dashboard_widget_fetches_total",
			Type:   MetricCounter,
			Labels: map[string]string{"widget": "contributions", "outcome": "stale"},
			Value:  2,
		},
		{Name: "", Value: 99},
	})

	body := scrape(t, handler)
	wantSubstrs := []string{
		`# HELP gh_dashboard_pages_active Dashboard pages currently held in memory.`,
		`# TYPE gh_dashboard_pages_active gauge`,
		`gh_dashboard_pages_active 3`,
		`# TYPE gh_dashboard_widget_fetches counter`,
		`gh_dashboard_widget_fetches_total{outcome="stale",widget="contributions"} 2`,
		"# EOF",
	}
	for _, substr := range wantSubstrs {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics output missing %q:\n%s", substr, body)
		}
	}
	if strings.Contains(body, "99") {
		t.Fatalf("unnamed point was rendered:\n%s", body)
	}
}

func TestOpenMetricsHandlerIncludesCacheMetrics(t *testing.T) {
	t.Parallel()

	cached := NewCachedSnapshotReader(staticReader{
		{Name: "gh_dashboard_cache_entries", Type: MetricGauge, Labels: map[string]string{"backend": "memory"}, Value: 7},
	}, CacheConfig{})

	body := scrape(t, NewOpenMetricsHandler(cached))
	wantSubstrs := []string{
		`gh_dashboard_cache_entries{backend="memory"} 7`,
		`gh_dashboard_metrics_series_loaded{metric="gh_dashboard_cache_entries"} 1`,
		`# TYPE gh_dashboard_metrics_cache_refresh_duration_seconds gauge`,
	}
	for _, substr := range wantSubstrs {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics output missing %q:\n%s", substr, body)
		}
	}
}

func TestOpenMetricsHandlerNilReader(t *testing.T) {
	t.Parallel()

	body := scrape(t, NewOpenMetricsHandler(nil))
	if !strings.Contains(body, "# EOF") {
		t.Fatalf("metrics output missing EOF marker:\n%s", body)
	}
}
