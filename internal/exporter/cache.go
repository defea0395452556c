package exporter

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	metricSeriesLoaded    = "gh_dashboard_metrics_series_loaded"
	metricRefreshDuration = "gh_dashboard_metrics_cache_refresh_duration_seconds"
)

// CacheConfig configures the snapshot cache used by /metrics rendering.
type CacheConfig struct {
	RefreshInterval time.Duration
	Now             func() time.Time
}

type cachedSnapshotReader struct {
	source SnapshotReader

	refreshInterval time.Duration
	now             func() time.Time

	mu              sync.RWMutex
	initialized     bool
	lastRefresh     time.Time
	refreshDuration time.Duration
	series          map[string]MetricPoint
}

// NewCachedSnapshotReader wraps a snapshot reader so scrapes within RefreshInterval reuse
// the previous snapshot instead of walking every page again.
func NewCachedSnapshotReader(source SnapshotReader, cfg CacheConfig) SnapshotReader {
	if source == nil {
		return &cachedSnapshotReader{}
	}
	if _, alreadyCached := source.(*cachedSnapshotReader); alreadyCached {
		return source
	}

	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = 15 * time.Second
	}

	return &cachedSnapshotReader{
		source:          source,
		refreshInterval: refreshInterval,
		now:             nowFn,
		series:          make(map[string]MetricPoint),
	}
}

func (c *cachedSnapshotReader) Snapshot() []MetricPoint {
	if c == nil || c.source == nil {
		return nil
	}
	c.refreshIfNeeded()

	c.mu.RLock()
	defer c.mu.RUnlock()
	points := c.sortedSnapshotLocked()
	return append(points, c.selfMetricsLocked()...)
}

func (c *cachedSnapshotReader) refreshIfNeeded() {
	now := c.now()

	c.mu.RLock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		return
	}

	started := time.Now()
	points := c.source.Snapshot()
	next := make(map[string]MetricPoint, len(points))
	for _, point := range points {
		next[seriesIdentity(point)] = clonePoint(point)
	}
	c.series = next
	c.refreshDuration = time.Since(started)
	c.lastRefresh = now
	c.initialized = true
}

func (c *cachedSnapshotReader) sortedSnapshotLocked() []MetricPoint {
	if len(c.series) == 0 {
		return nil
	}

	keys := make([]string, 0, len(c.series))
	for key := range c.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]MetricPoint, 0, len(keys)+8)
	for _, key := range keys {
		result = append(result, clonePoint(c.series[key]))
	}
	return result
}

func (c *cachedSnapshotReader) selfMetricsLocked() []MetricPoint {
	perMetric := make(map[string]int)
	for _, point := range c.series {
		perMetric[point.Name]++
	}
	names := make([]string, 0, len(perMetric))
	for name := range perMetric {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]MetricPoint, 0, len(names)+1)
	for _, name := range names {
		points = append(points, MetricPoint{
			Name:   metricSeriesLoaded,
			Help:   "Series held by the metrics snapshot cache.",
			Type:   MetricGauge,
			Labels: map[string]string{"metric": name},
			Value:  float64(perMetric[name]),
		})
	}
	points = append(points, MetricPoint{
		Name:  metricRefreshDuration,
		Help:  "Duration of the last metrics snapshot refresh.",
		Type:  MetricGauge,
		Value: c.refreshDuration.Seconds(),
	})
	return points
}

func clonePoint(point MetricPoint) MetricPoint {
	point.Labels = maps.Clone(point.Labels)
	return point
}

func seriesKey(point MetricPoint) string {
	labelKeys := make([]string, 0, len(point.Labels))
	for key := range point.Labels {
		labelKeys = append(labelKeys, key)
	}
	sort.Strings(labelKeys)

	builder := strings.Builder{}
	builder.WriteString(point.Name)
	builder.WriteString("|")
	for _, key := range labelKeys {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(point.Labels[key])
		builder.WriteString(";")
	}
	return builder.String()
}

func seriesIdentity(point MetricPoint) string {
	sum := sha256.Sum256([]byte(seriesKey(point)))
	return hex.EncodeToString(sum[:])
}
