package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay throughput and failures.
type Metrics struct {
	Published      prometheus.Counter
	PublishFailure prometheus.Counter
	Backlog        prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_outbox_published_total",
			Help: "Outbox entries delivered to the notification topic",
		}),
		PublishFailure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_outbox_publish_failures_total",
			Help: "Relay batches that failed to publish",
		}),
		Backlog: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_outbox_batch_size",
			Help: "Size of the last pending batch read by the relay",
		}),
	}
}

func (m *Metrics) addPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) incFailure() {
	if m != nil {
		m.PublishFailure.Inc()
	}
}

func (m *Metrics) setBatch(n int) {
	if m != nil {
		m.Backlog.Set(float64(n))
	}
}
