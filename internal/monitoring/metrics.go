package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters for report runs. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	categories       prometheus.Counter
	categoryDuration *prometheus.HistogramVec
	outputBins       prometheus.Gauge
	runs             *prometheus.CounterVec
}

// NewMetrics registers the report metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		categories: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acoustic_report",
			Name:      "categories_regridded_total",
			Help:      "Number of category grids produced.",
		}),
		categoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acoustic_report",
			Name:      "category_regrid_seconds",
			Help:      "Time spent masking and regridding one category.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"category"}),
		outputBins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "acoustic_report",
			Name:      "output_bins",
			Help:      "Cells in the last report grid (categories x ping bins x depth channels).",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acoustic_report",
			Name:      "runs_total",
			Help:      "Report runs by outcome.",
		}, []string{"mode"}),
	}
	m.Registry.MustRegister(m.categories, m.categoryDuration, m.outputBins, m.runs)
	return m
}

// ObserveCategory records one finished category.
func (m *Metrics) ObserveCategory(category int, d time.Duration) {
	if m == nil {
		return
	}
	m.categories.Inc()
	m.categoryDuration.WithLabelValues(strconv.Itoa(category)).Observe(d.Seconds())
}

// SetOutputBins records the size of the produced grid.
func (m *Metrics) SetOutputBins(n int) {
	if m == nil {
		return
	}
	m.outputBins.Set(float64(n))
}

// RunCompleted counts a run by mode ("new", "append", "empty", "failed").
func (m *Metrics) RunCompleted(mode string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(mode).Inc()
}

// WriteTextfile writes the current metrics in the node exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
