package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exposes the same metric names as labels, for local runs scraped at /metrics.
type Prometheus struct {
	latency *prometheus.HistogramVec
	counts  *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pizza_tracker_latency_milliseconds",
				Help:    "Read path latency by step",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"metric"},
		),
		counts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pizza_tracker_events_total",
				Help: "Cache hits and misses by read operation",
			},
			[]string{"metric"}, // get-order-cache-hit|get-order-cache-miss|...
		),
	}
	reg.MustRegister(p.latency, p.counts)
	return p
}

func (p *Prometheus) Latency(name string, d time.Duration) {
	p.latency.WithLabelValues(name).Observe(float64(d) / float64(time.Millisecond))
}

func (p *Prometheus) Count(name string, n float64) {
	p.counts.WithLabelValues(name).Add(n)
}

func (p *Prometheus) Flush(context.Context) {}
