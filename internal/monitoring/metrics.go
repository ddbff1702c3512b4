package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MapperMetrics bundles the Prometheus series for the mapping loop. A nil
// *MapperMetrics is valid and records nothing.
type MapperMetrics struct {
	gatherer prometheus.Gatherer

	ReadingsInserted  prometheus.Counter
	ReadingsDiscarded prometheus.Counter
	Scans             prometheus.Counter
	ScanErrors        prometheus.Counter
	OccupiedCells     prometheus.Gauge
	ScanDuration      prometheus.Histogram
}

// NewMapperMetrics registers the mapping metrics against reg, defaulting to
// the global registry when nil. Registering twice on the same registry
// returns the existing collectors.
func NewMapperMetrics(reg prometheus.Registerer) (*MapperMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &MapperMetrics{gatherer: gatherer}
	var err error
	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&m.ReadingsInserted, "rangemap_readings_inserted_total", "Readings projected inside the grid."},
		{&m.ReadingsDiscarded, "rangemap_readings_discarded_total", "Readings projected outside the grid and dropped."},
		{&m.Scans, "rangemap_scans_total", "Completed sweep and update cycles."},
		{&m.ScanErrors, "rangemap_scan_errors_total", "Sweep cycles that failed to read the range sensor."},
	}
	for _, c := range counters {
		*c.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: c.name, Help: c.help}), c.name)
		if err != nil {
			return nil, err
		}
	}

	m.OccupiedCells, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rangemap_occupied_cells",
		Help: "Number of occupied cells in the grid.",
	}), "rangemap_occupied_cells")
	if err != nil {
		return nil, err
	}

	m.ScanDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rangemap_scan_duration_seconds",
		Help:    "Duration of one sweep and update cycle.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "rangemap_scan_duration_seconds")
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveUpdate records the outcome of one map update.
func (m *MapperMetrics) ObserveUpdate(inserted, discarded, occupied int) {
	if m == nil {
		return
	}
	m.ReadingsInserted.Add(float64(inserted))
	m.ReadingsDiscarded.Add(float64(discarded))
	m.OccupiedCells.Set(float64(occupied))
}

// ObserveScan records one sweep cycle. Failed cycles count towards
// ScanErrors and are not timed.
func (m *MapperMetrics) ObserveScan(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ScanErrors.Inc()
		return
	}
	m.Scans.Inc()
	m.ScanDuration.Observe(d.Seconds())
}

// Handler exposes the registry the metrics were registered on.
func (m *MapperMetrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
