package host

import (
	stdErrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are shared by every engine registered with the same registerer.
type metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	active      *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glass",
			Name:      "invocations_total",
			Help:      "Guest invocations by entrypoint interface and outcome.",
		}, []string{"interface", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "glass",
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of guest invocations, instantiation included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"interface"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "glass",
			Name:      "active_instances",
			Help:      "Guest instances currently alive.",
		}, []string{"interface"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.invocations, err = register(reg, m.invocations); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.active, err = register(reg, m.active); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, or returns the collector already registered under the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stdErrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observe(iface string, outcome string, elapsed time.Duration) {
	m.invocations.WithLabelValues(iface, outcome).Inc()
	m.duration.WithLabelValues(iface).Observe(elapsed.Seconds())
}
