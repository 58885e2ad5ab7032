package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports limiter decisions to Prometheus.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics registers the decision counter on reg. When tracked is non-nil a
// gauge reporting the number of tracked client keys is registered as well.
func NewMetrics(reg prometheus.Registerer, tracked func() int) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriber_rate_limit_decisions_total",
			Help: "Rate limit decisions by outcome and client class",
		}, []string{"decision", "client"}),
	}
	if err := reg.Register(m.decisions); err != nil {
		return nil, err
	}

	if tracked != nil {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "subscriber_rate_limit_tracked_keys",
			Help: "Client keys currently held by the in-memory limiter",
		}, func() float64 { return float64(tracked()) })
		if err := reg.Register(gauge); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Observe counts one decision.
func (m *Metrics) Observe(d Decision, authenticated bool) {
	if m == nil {
		return
	}
	client := "anonymous"
	if authenticated {
		client = "authenticated"
	}
	m.decisions.WithLabelValues(d.String(), client).Inc()
}
