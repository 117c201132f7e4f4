package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK        = "ok"
	outcomeUnknown   = "unknown_event"
	outcomeNoHandler = "no_handler"
	outcomeFault     = "fault"
)

// Metrics instruments a Dispatcher. A nil *Metrics records nothing.
type Metrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	items    *prometheus.CounterVec
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskplan",
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Events dispatched, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskplan",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent dispatching an event or batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskplan",
			Subsystem: "dispatch",
			Name:      "batch_items_total",
			Help:      "Items processed by successful batches.",
		}, []string{"event_type"}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.duration, m.items)
	}
	return m
}

func (m *Metrics) observe(eventType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
	m.duration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *Metrics) batchItems(eventType string, n int) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(eventType).Add(float64(n))
}
