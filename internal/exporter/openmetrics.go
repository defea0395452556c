package exporter

import (
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricType is the Prometheus type of a point.
type MetricType string

const (
	// MetricGauge is a point-in-time value.
	MetricGauge MetricType = "gauge"
	// MetricCounter is a monotonically increasing total.
	MetricCounter MetricType = "counter"
)

// MetricPoint is one sample to expose.
type MetricPoint struct {
	Name   string
	Help   string
	Type   MetricType
	Labels map[string]string
	Value  float64
}

// SnapshotReader reads metric snapshots.
type SnapshotReader interface {
	Snapshot() []MetricPoint
}

// NewOpenMetricsHandler returns a handler that renders snapshots through the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(reader SnapshotReader) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{reader: reader})

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type snapshotCollector struct {
	reader SnapshotReader
}

func (c *snapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	for _, point := range c.reader.Snapshot() {
		if point.Name == "" {
			continue
		}

		labelKeys := make([]string, 0, len(point.Labels))
		for key := range point.Labels {
			labelKeys = append(labelKeys, key)
		}
		sort.Strings(labelKeys)

		labelValues := make([]string, 0, len(labelKeys))
		for _, key := range labelKeys {
			labelValues = append(labelValues, point.Labels[key])
		}

		help := point.Help
		if help == "" {
			help = point.Name
		}
		valueType := prometheus.GaugeValue
		if point.Type == MetricCounter {
			valueType = prometheus.CounterValue
		}

		desc := prometheus.NewDesc(point.Name, help, labelKeys, nil)
		metric, err := prometheus.NewConstMetric(desc, valueType, point.Value, labelValues...)
		if err != nil {
			continue
		}
		ch <- metric
	}
}
