package exporter

import (
	"sort"

	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/store"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
)

const (
	metricPagesActive    = "gh_dashboard_pages_active"
	metricWidgetFetches  = "gh_dashboard_widget_fetches_total"
	metricWidgetPhase    = "gh_dashboard_widget_pages"
	metricWidgetEpochMax = "gh_dashboard_widget_epoch_max"
	metricCacheEntries   = "gh_dashboard_cache_entries"
	metricCacheHits      = "gh_dashboard_cache_hits_total"
	metricCacheMisses    = "gh_dashboard_cache_misses_total"
)

var phases = []widget.Phase{widget.PhaseIdle, widget.PhaseLoading, widget.PhaseLoaded, widget.PhaseError}

// PageSource lists widget snapshots of live pages. RetiredStats carries the counters of
// pages that have already expired so fetch totals never go backwards.
type PageSource interface {
	PageSnapshots() [][]dashboard.WidgetSnapshot
	RetiredStats() map[string]widget.Stats
}

// CacheStatser reports response cache activity.
type CacheStatser interface {
	Stats() store.Stats
}

type dashboardReader struct {
	pages        PageSource
	cache        CacheStatser
	cacheBackend string
}

// NewDashboardReader exposes page and cache state as metric points. cache may be nil.
func NewDashboardReader(pages PageSource, cache CacheStatser, cacheBackend string) SnapshotReader {
	return &dashboardReader{pages: pages, cache: cache, cacheBackend: cacheBackend}
}

func (r *dashboardReader) Snapshot() []MetricPoint {
	points := make([]MetricPoint, 0, 64)
	if r.pages != nil {
		points = append(points, r.pagePoints()...)
	}
	if r.cache != nil {
		points = append(points, r.cachePoints()...)
	}
	return points
}

func (r *dashboardReader) pagePoints() []MetricPoint {
	pages := r.pages.PageSnapshots()

	totals := make(map[string]widget.Stats)
	for name, stats := range r.pages.RetiredStats() {
		totals[name] = stats
	}
	phaseCounts := make(map[string]map[widget.Phase]int)
	epochMax := make(map[string]uint64)
	for _, page := range pages {
		for _, snapshot := range page {
			totals[snapshot.Widget] = addStats(totals[snapshot.Widget], snapshot.Stats)
			if phaseCounts[snapshot.Widget] == nil {
				phaseCounts[snapshot.Widget] = make(map[widget.Phase]int)
			}
			phaseCounts[snapshot.Widget][snapshot.Phase]++
			if snapshot.Epoch > epochMax[snapshot.Widget] {
				epochMax[snapshot.Widget] = snapshot.Epoch
			}
		}
	}

	points := []MetricPoint{{
		Name:  metricPagesActive,
		Help:  "Dashboard pages currently held in memory.",
		Type:  MetricGauge,
		Value: float64(len(pages)),
	}}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stats := totals[name]
		for _, outcome := range []struct {
			label string
			value uint64
		}{
			{label: "issued", value: stats.Issued},
			{label: "applied", value: stats.Applied},
			{label: "stale", value: stats.Stale},
			{label: "failed", value: stats.Failed},
		} {
			points = append(points, MetricPoint{
				Name:   metricWidgetFetches,
				Help:   "Widget fetches by outcome. Stale fetches resolved after a newer selector and were discarded.",
				Type:   MetricCounter,
				Labels: map[string]string{"widget": name, "outcome": outcome.label},
				Value:  float64(outcome.value),
			})
		}

		counts, live := phaseCounts[name]
		if !live {
			continue
		}
		for _, phase := range phases {
			points = append(points, MetricPoint{
				Name:   metricWidgetPhase,
				Help:   "Live pages by widget phase.",
				Type:   MetricGauge,
				Labels: map[string]string{"widget": name, "phase": string(phase)},
				Value:  float64(counts[phase]),
			})
		}
		points = append(points, MetricPoint{
			Name:   metricWidgetEpochMax,
			Help:   "Highest fetch epoch across live pages.",
			Type:   MetricGauge,
			Labels: map[string]string{"widget": name},
			Value:  float64(epochMax[name]),
		})
	}
	return points
}

func (r *dashboardReader) cachePoints() []MetricPoint {
	stats := r.cache.Stats()
	labels := func() map[string]string {
		return map[string]string{"backend": r.cacheBackend}
	}
	return []MetricPoint{
		{Name: metricCacheEntries, Help: "Entries in the response cache.", Type: MetricGauge, Labels: labels(), Value: float64(stats.Entries)},
		{Name: metricCacheHits, Help: "Response cache hits.", Type: MetricCounter, Labels: labels(), Value: float64(stats.Hits)},
		{Name: metricCacheMisses, Help: "Response cache misses.", Type: MetricCounter, Labels: labels(), Value: float64(stats.Misses)},
	}
}

func addStats(a, b widget.Stats) widget.Stats {
	return widget.Stats{
		Issued:  a.Issued + b.Issued,
		Applied: a.Applied + b.Applied,
		Stale:   a.Stale + b.Stale,
		Failed:  a.Failed + b.Failed,
	}
}
