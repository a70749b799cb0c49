package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plsm/assisi-go/errors"
)

// ringMetrics exposes ring occupancy and drops as Prometheus metrics.
type ringMetrics struct {
	size        prometheus.Gauge
	utilization prometheus.Gauge
	drops       prometheus.Counter
}

// WithMetrics registers occupancy and drop metrics for this ring under the
// given component label. A nil registerer disables the option.
func WithMetrics[T any](reg prometheus.Registerer, component string) Option[T] {
	return func(o *options[T]) {
		if reg == nil || component == "" {
			return
		}
		m, err := newRingMetrics(reg, component)
		if err != nil {
			return
		}
		o.metrics = m
	}
}

func newRingMetrics(reg prometheus.Registerer, component string) (*ringMetrics, error) {
	m := &ringMetrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "assisi",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Current number of items in the ring",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "assisi",
			Subsystem:   "buffer",
			Name:        "utilization_ratio",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Ring occupancy as a fraction of capacity",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "assisi",
			Subsystem:   "buffer",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total items dropped by the overflow policy",
		}),
	}

	for _, c := range []prometheus.Collector{m.size, m.utilization, m.drops} {
		if err := reg.Register(c); err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newRingMetrics", "metrics registration")
		}
	}
	return m, nil
}

func (m *ringMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	if capacity > 0 {
		m.utilization.Set(float64(size) / float64(capacity))
	}
}

func (m *ringMetrics) recordDrop() {
	m.drops.Inc()
}
