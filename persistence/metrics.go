package persistence

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records board write outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	writes    *prometheus.CounterVec
	retries   prometheus.Counter
	coalesced prometheus.Counter
	duration  prometheus.Histogram
}

// NewMetrics registers the persistence collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prism_board",
			Subsystem: "persistence",
			Name:      "writes_total",
			Help:      "Board document writes by result.",
		}, []string{"result"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prism_board",
			Subsystem: "persistence",
			Name:      "retries_total",
			Help:      "Board write attempts after the first.",
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prism_board",
			Subsystem: "persistence",
			Name:      "coalesced_total",
			Help:      "Scheduled writes folded into an already pending write.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prism_board",
			Subsystem: "persistence",
			Name:      "write_duration_seconds",
			Help:      "Gateway upsert latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeWrite(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	if err != nil {
		m.writes.WithLabelValues("error").Inc()
		return
	}
	m.writes.WithLabelValues("ok").Inc()
}

func (m *Metrics) observeRetry() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) observeCoalesced() {
	if m != nil {
		m.coalesced.Inc()
	}
}
